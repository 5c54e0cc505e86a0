package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tamalehq/tamalebot/internal/server"
)

var servePort int

func serveCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP agent host",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
	c.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
	return c
}

func runServe() {
	rt, err := buildRuntime()
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	port := rt.cfg.Port
	if servePort != 0 {
		port = servePort
	}

	srv := server.New(server.Options{
		AgentID:       rt.cfg.AgentID,
		AgentName:     rt.cfg.AgentName,
		Model:         rt.cfg.Model,
		Loop:          rt.loop,
		Conversations: rt.conversations,
		Journal:       rt.journal,
		RatePerMinute: rt.engine.RateLimitPerMinute(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("agent starting",
		"agent", rt.cfg.AgentName, "id", rt.cfg.AgentID,
		"model", rt.cfg.Model, "provider", rt.cfg.Provider,
		"policy", rt.cfg.Policy, "port", port)

	err = srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))

	// Flush the journal before reporting; audit entries must survive
	// shutdown even when the listener failed.
	if closeErr := rt.Close(); closeErr != nil {
		slog.Warn("audit journal close failed", "error", closeErr)
	}
	if err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
