package api

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"field-sync-service/internal/config"
	"field-sync-service/internal/connectivity"
	"field-sync-service/internal/logger"
	"field-sync-service/internal/sync"
)

type Handler struct {
	syncManager *sync.Manager
	cfg         config.ServerConfig

	// manual is set only in manual connectivity mode.
	manual *connectivity.ManualSignal
}

func NewHandler(manager *sync.Manager, cfg config.ServerConfig, manual *connectivity.ManualSignal) *Handler {
	return &Handler{
		syncManager: manager,
		cfg:         cfg,
		manual:      manual,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware(h.cfg.CorsOrigins))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(h.cfg.AuthToken))

		r.Post("/clients", h.CreateClient)
		r.Put("/clients/{id}", h.UpdateClient)
		r.Get("/clients/local", h.ListLocalClients)

		r.Post("/sync/trigger", h.TriggerSync)
		r.Get("/sync/status", h.GetSyncStatus)
		r.Get("/sync/pending", h.ListPending)
		r.Delete("/sync/pending", h.ClearPending)
		r.Get("/sync/history", h.ListHistory)
		r.Get("/sync/events", h.SyncEvents)

		r.Delete("/local", h.ResetLocalData)
		r.Put("/connectivity", h.SetConnectivity)
	})

	return r
}

// RequestLogger logs one line per request through the service logger.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			logger.Log.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// CorsMiddleware allows the configured origins; none configured allows all.
func CorsMiddleware(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(origins) == 0 || slices.Contains(origins, "*"):
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware requires "Authorization: Bearer <token>" when token is set.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, response{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
