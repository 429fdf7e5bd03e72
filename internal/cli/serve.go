package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/next-trace/scg-message-publisher/internal/httpapi"
	"github.com/next-trace/scg-message-publisher/internal/logging"
)

func newServeCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP publish API",
		Long:  `Serves the publish API, health endpoints and metrics until SIGINT or SIGTERM, then shuts down gracefully.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := o.load(cmd)
			if err != nil {
				return err
			}

			app, err := e.app()
			if err != nil {
				return err
			}
			defer app.Close()

			cfg := e.cfg

			if missing := cfg.Missing(); len(missing) > 0 {
				e.log.Warn("required settings are missing", slog.Any("missing", missing))
			}

			h := httpapi.New(app.Gateway(), httpapi.Options{
				Version:       cfg.App.Version,
				Environment:   cfg.App.Env,
				Development:   cfg.App.Development(),
				CORSOrigins:   cfg.Server.CORSOrigins,
				Missing:       cfg.Missing,
				AWSConfigured: cfg.AWS.HasCredentials(),
				Logger:        e.log.Logger,
			})

			e.log.Info("publisher api configured",
				logging.Service(cfg.App.Name),
				slog.String("environment", cfg.App.Env),
				slog.Int("port", cfg.Server.Port),
			)

			return httpapi.Serve(cmd.Context(), httpapi.ServerConfig{
				Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			}, h, e.log.Logger)
		},
	}
}
