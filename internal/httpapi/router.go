// Package httpapi wires the dispatcher's HTTP surface: chi router,
// CORS, and the full set of dispatcher routes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dispatcher/internal/broadcaster"
	"dispatcher/internal/forwarder"
	"dispatcher/internal/registry"
	"dispatcher/internal/telemetry"
)

// Deps are the components the HTTP surface dispatches to.
type Deps struct {
	Registry       *registry.Registry
	Forwarder      *forwarder.Forwarder
	Broadcaster    *broadcaster.Broadcaster
	Metrics        *telemetry.Metrics
	MetricsHandler http.Handler
	Log            *zap.Logger
	AllowedOrigins []string
}

// NewRouter builds the full chi router for the dispatcher.
func NewRouter(d Deps) http.Handler {
	h := &handlers{d: d, upgrader: newUpgrader(d.AllowedOrigins, d.Log)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors(d.AllowedOrigins))

	r.Get("/health", h.health)
	r.Get("/status", h.status)
	r.Post("/task", h.task)
	r.Get("/algorithm", h.getAlgorithm)
	r.Put("/algorithm", h.setAlgorithm)
	r.Post("/algorithm", h.setAlgorithm)
	r.Patch("/workers/{name}", h.patchWorker)
	r.Get("/workers/{name}/config", h.proxyWorkerConfig)
	r.Put("/workers/{name}/config", h.proxyWorkerConfig)
	r.Post("/workers/{name}/config", h.proxyWorkerConfig)
	r.Get("/metrics", h.metrics)
	r.Get("/ws", h.ws)

	return r
}

// cors honors an explicit allow-list when one is configured; an empty
// list allows all origins.
func cors(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if len(allowedOrigins) == 0 {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if originAllowed(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}

func newUpgrader(allowedOrigins []string, log *zap.Logger) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if originAllowed(allowedOrigins, origin) {
				return true
			}
			if log != nil {
				log.Warn("websocket connection rejected", zap.String("origin", origin))
			}
			return false
		},
	}
}

const proxyTimeout = 5 * time.Second
