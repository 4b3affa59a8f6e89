package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/svcpanel"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, &ServeFlags{}),
		createStatusCommand(globalFlags),
		createExecCommand(globalFlags),
		createActionsCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "svcpanel",
		Short: "On-device service control panel",
		Long: `svcpanel supervises a fixed set of device services (ssh, a static web
server, pm2 and the wake-lock) and reports host resource usage.

Examples:
  svcpanel serve --config=svcpanel.toml
  svcpanel status
  svcpanel exec restart_all
  svcpanel actions`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func openPanel(flags *GlobalFlags) (*svcpanel.Panel, error) {
	cfg, err := svcpanel.LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return svcpanel.Open(cfg)
}

func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control panel HTTP API",
		Long: `Serve the panel API on [server].listen until SIGINT or SIGTERM.

Examples:
  svcpanel serve
  svcpanel serve --config=svcpanel.toml --daemonize --pidfile=svcpanel.pid`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveFlags.Daemonize {
				return daemonize(serveFlags.PidFile, serveFlags.LogFile)
			}
			return runServe(cmd.Context(), globalFlags, serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run in the background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the server PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

func runServe(ctx context.Context, globalFlags *GlobalFlags, flags *ServeFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := openPanel(globalFlags)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	srv := p.NewHTTPServer()
	log := p.Logger()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("svcpanel listening", "addr", srv.Addr)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print host resources and service states as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPanel(globalFlags)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()
			return printJSON(cmd.OutOrStdout(), p.Status(cmd.Context()))
		},
	}
}

func createExecCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <action>",
		Short: "Run one control action",
		Long: `Run one control action and print its result as JSON.
Accepts panel ids (start_ssh, wake_lock, restart_all, ...) and canonical
ids (start:ssh, stop:web, restart-all, ...). Exits non-zero when the action
did not succeed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := svcpanel.ParseAction(args[0]); err != nil {
				return err
			}
			p, err := openPanel(globalFlags)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()
			return execAction(cmd.Context(), cmd.OutOrStdout(), p, args[0])
		},
	}
}

type executor interface {
	Execute(ctx context.Context, id string) svcpanel.ActionResult
}

func execAction(ctx context.Context, w io.Writer, e executor, id string) error {
	res := e.Execute(ctx, id)
	if err := printJSON(w, res); err != nil {
		return err
	}
	if !res.Succeeded {
		return errors.New(res.Message)
	}
	return nil
}

func createActionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List accepted action ids",
		Run: func(cmd *cobra.Command, args []string) {
			for _, id := range svcpanel.ActionIDs() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			}
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
