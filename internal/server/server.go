// Package server serves a rendered output tree for local preview together with
// health, stats and Prometheus endpoints.
package server

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/district-poi/internal/monitoring"
)

// RouterConfig holds the router dependencies. Metrics and Collector are
// optional.
type RouterConfig struct {
	OutputDir      string
	Metrics        *monitoring.Metrics
	Collector      *monitoring.Collector
	AllowedOrigins []string
}

// NewRouter builds the preview handler.
func NewRouter(cfg RouterConfig) http.Handler {
	log := zap.L().With(zap.String("component", "server"))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Metrics != nil {
		prom := promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			if cfg.Collector != nil {
				if snap, err := cfg.Collector.Collect(req.Context()); err != nil {
					log.Warn("metrics snapshot failed", zap.Error(err))
				} else {
					cfg.Metrics.RecordSnapshot(snap)
				}
			}
			prom.ServeHTTP(w, req)
		})
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			if cfg.Collector == nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store configured"})
				return
			}
			snap, err := cfg.Collector.Collect(req.Context())
			if err != nil {
				log.Error("stats failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})
		api.Get("/files", func(w http.ResponseWriter, _ *http.Request) {
			files, err := listFiles(cfg.OutputDir)
			if err != nil {
				log.Error("list files failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cannot list output"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"files": files})
		})
	})

	r.Handle("/*", http.FileServer(http.Dir(cfg.OutputDir)))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}

// listFiles returns the files under dir as sorted slash-separated paths.
func listFiles(dir string) ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(files)
	return files, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
