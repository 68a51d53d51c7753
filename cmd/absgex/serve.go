package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/absgex/internal/server"
	"github.com/dgnsrekt/absgex/internal/stream"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve AbsGEX profiles over HTTP and WebSocket",
		Long: `Start the HTTP API.

Endpoints:
  GET  /health
  GET  /v1/gex/{underlying}/profile
  GET  /v1/gex/{underlying}/levels
  GET  /v1/gex/{underlying}/export
  GET  /v1/gex/{underlying}/live     (WebSocket, when streaming is enabled)
  POST /v1/cache/flush`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := buildService()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var hub *stream.Hub
			if cfg.Server.StreamEnabled {
				hub = stream.NewHub(logger)
				go hub.Run(ctx)

				streamer := stream.NewStreamer(hub, svc, cfg.StreamInterval(), logger)
				go streamer.Run(ctx)

				logger.Info("streaming enabled", zap.Duration("interval", cfg.StreamInterval()))
			}

			srv := server.NewServer(svc, hub, cfg, logger)
			router := server.NewRouter(srv, logger)

			httpServer := &http.Server{
				Addr:         ":" + cfg.Server.Port,
				Handler:      router,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server", zap.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down server...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
				return err
			}

			logger.Info("server stopped")
			return nil
		},
	}

	return cmd
}
