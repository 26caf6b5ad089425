package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"EasyAPI/internal/controller"
	"EasyAPI/internal/logger"
	"EasyAPI/internal/response"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type Options struct {
	// Prefix is prepended to every controller path, e.g. "/api".
	Prefix           string
	AllowOrigin      string
	AllowCredentials bool
	Controllers      []*controller.Controller
	// Health reports readiness of backing services on /healthz.
	Health func(ctx context.Context) error
}

// New returns the HTTP handler serving every controller.
func New(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(withLogging)
	r.Use(newCORSPolicy(opts.AllowOrigin, opts.AllowCredentials).middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(r.Context()); err != nil {
				response.Write(w, response.New(err.Error(), http.StatusServiceUnavailable, "Unavailable"))
				return
			}
		}
		response.Write(w, response.OK(map[string]any{"status": "ok"}))
	})

	prefix := "/" + strings.Trim(opts.Prefix, "/")
	if prefix == "/" {
		controller.Mount(r, opts.Controllers...)
	} else {
		r.Route(prefix, func(api chi.Router) {
			controller.Mount(api, opts.Controllers...)
		})
	}
	for _, c := range opts.Controllers {
		for _, rt := range c.Routes {
			logger.Debug("route_registered", map[string]any{
				"controller": c.Name,
				"method":     rt.Method,
				"path":       strings.TrimSuffix(prefix, "/") + c.Path + strings.TrimSuffix(rt.Pattern, "/"),
				"summary":    rt.Summary,
			})
		}
	}
	return r
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		level := "info"
		if sw.status >= 500 {
			level = "error"
		} else if sw.status >= 400 {
			level = "warn"
		}
		fields := map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.status,
			"request_id":  r.Header.Get(requestIDHeader),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		switch level {
		case "error":
			logger.Error("response", fields)
		case "warn":
			logger.Warn("response", fields)
		default:
			logger.Info("response", fields)
		}
	})
}
