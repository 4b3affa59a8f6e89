package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/svcpanel/internal/history"
	"github.com/loykin/svcpanel/internal/metrics"
	"github.com/loykin/svcpanel/internal/supervisor"
)

// Supervisor is what the HTTP layer needs from the service supervisor.
type Supervisor interface {
	Status(ctx context.Context) supervisor.Status
	Execute(ctx context.Context, id string) supervisor.ActionResult
}

// Router provides embeddable HTTP handlers for the control panel.
// Endpoints:
//
//	GET      {basePath}/status           host resources and service states
//	GET|POST {basePath}/api/:action      run one action (start_ssh, stop:web, restart_all, ...)
//	GET      {basePath}/actions          accepted panel action ids
//	GET      {basePath}/history?limit=N  recent actions, when a readable sink is configured
//	GET      /metrics                    Prometheus, when enabled
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      Supervisor
	hist     history.Reader
	metrics  bool
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(sup Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// WithHistory enables the history endpoint backed by h.
func (r *Router) WithHistory(h history.Reader) *Router {
	r.hist = h
	return r
}

// WithMetrics mounts the Prometheus handler at /metrics.
func (r *Router) WithMetrics(enabled bool) *Router {
	r.metrics = enabled
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/api/:action", r.handleAction)
	group.POST("/api/:action", r.handleAction)
	group.GET("/actions", r.handleActions)
	group.GET("/history", r.handleHistory)
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer wraps the router in an http.Server listening on addr. The caller
// runs ListenAndServe and Shutdown.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// restart-all can take several seconds
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type actionsResp struct {
	Actions []string `json:"actions"`
}

type historyResp struct {
	Events []history.Event `json:"events"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Status(c.Request.Context()))
}

func (r *Router) handleAction(c *gin.Context) {
	id := c.Param("action")
	res := r.sup.Execute(c.Request.Context(), id)
	code := http.StatusOK
	if res.Rejected {
		code = http.StatusBadRequest
	}
	writeJSON(c, code, res)
}

func (r *Router) handleActions(c *gin.Context) {
	writeJSON(c, http.StatusOK, actionsResp{Actions: supervisor.BoundaryIDs()})
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.hist == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "history not configured"})
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid limit"})
			return
		}
		limit = n
	}
	events, err := r.hist.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, historyResp{Events: events})
}
