package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/api"
)

func newServeCmd() *cobra.Command {
	var ingestOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Config()
			logger := a.Logger()

			var apiKey string
			if cfg.Auth.Enabled {
				apiKey = cfg.Auth.APIKey
			}
			server := api.NewServer(a.Retriever, a.Pipeline, api.Config{
				Production:     cfg.App.IsProduction(),
				RequestTimeout: cfg.Server.RequestTimeout,
				IngestTimeout:  cfg.Server.IngestTimeout,
				APIKey:         apiKey,
				Limiter:        a.Limiter,
			}, logger)

			ctx := cmd.Context()
			if ingestOnStart {
				go func() {
					if _, err := server.RunIngest(ctx); err != nil {
						logger.Error("startup ingest failed", zap.Error(err))
					}
				}()
			}

			port := cfg.Server.Port
			if envPort := os.Getenv("PORT"); envPort != "" {
				if p, err := strconv.Atoi(envPort); err == nil {
					port = p
				}
			}
			httpServer := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", zap.Int("port", port))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http shutdown: %w", err)
			}
			logger.Info("http server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&ingestOnStart, "ingest-on-start", false, "run one acquisition in the background at startup")
	return cmd
}
