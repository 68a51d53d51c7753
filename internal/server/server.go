package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dgnsrekt/absgex/internal/config"
	"github.com/dgnsrekt/absgex/internal/service"
	"github.com/dgnsrekt/absgex/internal/stream"
)

// ProfileService is the computation collaborator behind the HTTP surface.
type ProfileService interface {
	Profile(ctx context.Context, req service.Request) (*service.Result, error)
	FlushCache() int
}

type Server struct {
	svc    ProfileService
	hub    *stream.Hub // nil when streaming is disabled
	config *config.Config
	logger *zap.Logger
}

func NewServer(svc ProfileService, hub *stream.Hub, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		svc:    svc,
		hub:    hub,
		config: cfg,
		logger: logger,
	}
}

func NewRouter(server *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/health", server.handleHealth)
	r.Post("/v1/cache/flush", server.handleCacheFlush)

	r.Route("/v1/gex/{underlying}", func(gr chi.Router) {
		gr.Get("/profile", server.handleProfile)
		gr.Get("/levels", server.handleLevels)
		gr.Get("/export", server.handleExport)
		gr.Get("/live", server.handleLive)
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", maskQueryKey(r.URL.RawQuery)),
			)
			next.ServeHTTP(w, r)
		})
	}
}

// maskQueryKey masks the "apiKey" parameter in a query string
func maskQueryKey(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	if key := values.Get("apiKey"); key != "" {
		if len(key) > 4 {
			values.Set("apiKey", key[:4]+"****")
		}
	}
	// Rebuild query string preserving order as much as possible
	var parts []string
	for k, vs := range values {
		for _, v := range vs {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, "&")
}
