package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/identity/pkg/app"
	"github.com/rhuss/identity/pkg/server"
)

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			metricsPath := ""
			if cfg.Observability.Metrics.Enabled {
				metricsPath = cfg.Observability.Metrics.Path
			}

			srv := server.New(a,
				server.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
				server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
				server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
				server.WithMetricsPath(metricsPath),
				server.WithLogger(slog.Default()),
			)
			return srv.Run(ctx)
		},
	}
}
