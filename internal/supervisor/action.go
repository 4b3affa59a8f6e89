package supervisor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/svcpanel/internal/registry"
)

// ErrUnknownAction is returned by ParseAction for ids that name no action.
var ErrUnknownAction = errors.New("unknown operation")

// Action is a control request. The set of implementations is closed:
// Start, Stop and RestartAll.
type Action interface {
	// ID returns the canonical identifier, e.g. "start:ssh" or "restart-all".
	ID() string
	action()
}

// Start starts one registry service.
type Start struct{ Service string }

// Stop stops one registry service.
type Stop struct{ Service string }

// RestartAll stops ssh and web, then starts ssh, web and the wake-lock.
type RestartAll struct{}

func (a Start) ID() string    { return "start:" + a.Service }
func (a Stop) ID() string     { return "stop:" + a.Service }
func (RestartAll) ID() string { return restartAllID }

func (Start) action()      {}
func (Stop) action()       {}
func (RestartAll) action() {}

const restartAllID = "restart-all"

// aliases are the identifiers exposed by the HTTP panel.
var aliases = []struct {
	id     string
	action Action
}{
	{"start_ssh", Start{registry.SSH}},
	{"stop_ssh", Stop{registry.SSH}},
	{"start_web", Start{registry.Web}},
	{"stop_web", Stop{registry.Web}},
	{"start_pm2", Start{registry.PM2}},
	{"stop_pm2", Stop{registry.PM2}},
	{"wake_lock", Start{registry.WakeLock}},
	{"wake_unlock", Stop{registry.WakeLock}},
	{"restart_all", RestartAll{}},
}

// ParseAction maps a canonical id or a panel alias to an Action.
func ParseAction(id string) (Action, error) {
	id = strings.TrimSpace(id)
	if id == restartAllID {
		return RestartAll{}, nil
	}
	for _, a := range aliases {
		if a.id == id {
			return a.action, nil
		}
	}
	verb, svc, ok := strings.Cut(id, ":")
	if ok && registry.Known(svc) {
		switch verb {
		case "start":
			return Start{svc}, nil
		case "stop":
			return Stop{svc}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, id)
}

// BoundaryIDs lists the panel aliases in display order.
func BoundaryIDs() []string {
	out := make([]string, len(aliases))
	for i, a := range aliases {
		out[i] = a.id
	}
	return out
}

// CanonicalIDs lists every canonical action id.
func CanonicalIDs() []string {
	var out []string
	for _, name := range registry.Names() {
		out = append(out, Start{name}.ID(), Stop{name}.ID())
	}
	return append(out, restartAllID)
}
