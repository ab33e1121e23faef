package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"animetracker/internal/handlers"

	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local tracker service",
		Long: `Runs a tracker REST service the other commands can talk to.

Entries are kept in memory unless DATABASE_URL or the DB_* variables point
at a Postgres database. Uploaded images are always kept in memory.`,
		Example: `  # Start on the default port 5123
  tracker serve

  # Start on a custom port
  tracker serve --port 3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.container.Logger
			if port == "" {
				port = a.cfg.Port
			}

			deps, err := a.container.RouterDeps(cmd.Context())
			if err != nil {
				return err
			}

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           handlers.NewRouter(deps),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				log.WithField("addr", addr).Info("Tracker service listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				log.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.WithError(err).Error("Server shutdown failed")
					return err
				}
				log.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (default PORT or 5123)")
	return cmd
}
