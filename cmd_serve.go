package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"prompt_json_structurer/server"
)

// shutdownGrace lets a submit that is already talking to the model finish.
const shutdownGrace = server.SubmitTimeout + 5*time.Second

// serverListening is a test hook called with the bound address.
var serverListening = func(net.Addr) {}

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the structurer HTTP API",
		Long: `Serve the session API over HTTP.

On SIGINT or SIGTERM the server stops accepting connections and waits for
requests in flight, including submits still waiting on the model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, llm, err := loadApp(root)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ServerAddr = addr
			}
			limits := server.SessionLimits{
				Max:  cfg.MaxSessions,
				Idle: time.Duration(cfg.SessionIdleMinutes) * time.Minute,
			}
			srv, err := server.New(llm, slog.Default(), limits, agentOptions(cfg)...)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", cfg.ServerAddr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			httpSrv := &http.Server{
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("listening", "addr", ln.Addr().String(), "provider", cfg.LLM.Provider)
			serverListening(ln.Addr())
			return serveUntilDone(ctx, httpSrv, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server_addr in config)")
	return cmd
}

// serveUntilDone serves on ln until ctx ends, then returns once Shutdown has
// drained the requests in flight.
func serveUntilDone(ctx context.Context, httpSrv *http.Server, ln net.Listener) error {
	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		slog.Info("shutting down, waiting for requests in flight")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		shutdownErr <- httpSrv.Shutdown(shutdownCtx)
	}()

	if err := httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
