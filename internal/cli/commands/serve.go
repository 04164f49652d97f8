package commands

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/atlas/internal/api"
	"github.com/leapstack-labs/atlas/internal/config"
)

// NewServeCommand creates the serve command.
func NewServeCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the portfolio HTTP API",
		Long: `Open one database session and serve the portfolio HTTP API on it until
interrupted. Requests share the session one at a time.`,
		Example: `  atlas serve --db-config ./dbconfig
  atlas serve --addr :9000 --conninfo "postgres://atlas@localhost/atlas"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			cfg := cmdCtx.Cfg

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sess, err := open(ctx, cfg, cmdCtx.Logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := sess.Close(); err != nil {
					cmdCtx.Logger.Warn("failed to close database session", slog.String("error", err.Error()))
				}
			}()

			srv := api.NewServer(api.Config{
				DB:              sess,
				Addr:            cfg.Addr,
				StagingSchema:   cfg.StagingSchema,
				ShutdownTimeout: cfg.ShutdownTimeout,
				Logger:          cmdCtx.Logger,
			})
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().String("addr", config.DefaultAddr, "Listen address")
	cmd.Flags().Duration("shutdown-timeout", config.DefaultShutdownTimeout, "Time allowed for in-flight requests on shutdown")

	return cmd
}
