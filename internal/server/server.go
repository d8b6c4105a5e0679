// Package server provides the HTTP server and routing for the fleet:
// dashboard dispatch, the TradingView webhook, fleet and order state
// views, the live event stream, and backup administration.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Server owns the chi router and the HTTP listener.
type Server struct {
	router chi.Router
	http   *http.Server
	log    zerolog.Logger
}

// Handlers collects everything the router mounts. Nil entries are
// skipped, so a partially wired server (tests, R2 not configured)
// still routes what it has.
type Handlers struct {
	Dispatch *DispatchHandlers
	Webhook  *WebhookHandlers
	Fleet    *FleetHandlers
	System   *SystemHandlers
	Events   *EventsStreamHandler
	R2Backup *R2BackupHandlers
}

// New builds the Server with the standard middleware stack: request
// ids, panic recovery, a permissive CORS policy for the local
// dashboard, and structured request logging.
func New(port int, h Handlers, log zerolog.Logger) *Server {
	s := &Server{log: log.With().Str("component", "server").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		if h.Dispatch != nil {
			r.Post("/dispatch", h.Dispatch.HandleDispatch)
			r.Post("/exit", h.Dispatch.HandleExit)
			r.Get("/orders/{intentID}", h.Dispatch.HandleOrdersByIntent)
		}
		if h.Webhook != nil {
			r.Post("/webhook/tradingview", h.Webhook.HandleTradingView)
		}
		if h.Fleet != nil {
			r.Get("/fleet", h.Fleet.HandleFleetSnapshot)
			r.Get("/fleet/{account}", h.Fleet.HandleSessionDetail)
			r.Get("/fleet/{account}/audit", h.Fleet.HandleSessionAudit)
		}
		if h.System != nil {
			r.Get("/system/status", h.System.HandleSystemStatus)
			r.Get("/system/jobs", h.System.HandleJobsStatus)
		}
		if h.Events != nil {
			r.Get("/events", h.Events.HandleEventsStream)
		}
		if h.R2Backup != nil {
			r.Get("/backups/r2", h.R2Backup.HandleListBackups)
			r.Post("/backups/r2", h.R2Backup.HandleCreateBackup)
			r.Post("/backups/r2/test", h.R2Backup.HandleTestConnection)
			r.Delete("/backups/r2/{filename}", h.R2Backup.HandleDeleteBackup)
			r.Get("/backups/r2/{filename}/download", h.R2Backup.HandleDownloadBackup)
			r.Post("/backups/r2/restore", h.R2Backup.HandleStageRestore)
			r.Delete("/backups/r2/restore/staged", h.R2Backup.HandleCancelRestore)
		}
	})

	s.router = r
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router exposes the router for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// writeJSON is the shared response helper every handler file uses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}
