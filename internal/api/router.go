package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/suiftly/sealctl/internal/billing"
	"github.com/suiftly/sealctl/internal/globalmanager"
	"github.com/suiftly/sealctl/internal/pubsub"
	"github.com/suiftly/sealctl/internal/store"
)

// Server holds the dependencies every C9 handler needs.
type Server struct {
	db     *store.DB
	engine *billing.Engine
	gm     *globalmanager.Manager
	ps     pubsub.PubSub
}

// Config is the dependency set NewServer wires into a router.
type Config struct {
	DB     *store.DB
	Engine *billing.Engine
	GM     *globalmanager.Manager
	PubSub pubsub.PubSub
}

func NewServer(cfg Config) *Server {
	return &Server{db: cfg.DB, engine: cfg.Engine, gm: cfg.GM, ps: cfg.PubSub}
}

// Router builds the chi tree for every §4.9 endpoint, generalizing the
// teacher's cmd/server middleware stack (logging, recovery, CORS) and
// adding per-route rate limiting on the mutating endpoints via
// go-chi/httprate.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/v1/customers/{customerID}", func(r chi.Router) {
		r.With(httprate.LimitByIP(20, time.Minute)).Post("/services", s.handleSubscribe)
		r.With(httprate.LimitByIP(60, time.Minute)).Post("/services/{serviceType}/enable", s.handleEnable)
		r.With(httprate.LimitByIP(60, time.Minute)).Post("/services/{serviceType}/disable", s.handleDisable)
		r.With(httprate.LimitByIP(60, time.Minute)).Post("/services/{serviceType}/cancel", s.handleCancel)
		r.With(httprate.LimitByIP(60, time.Minute)).Post("/services/{serviceType}/tier", s.handleChangeTier)
		r.With(httprate.LimitByIP(10, time.Minute)).Post("/reconcile", s.handleReconcile)
		r.Get("/sync-status", s.handleSyncStatus)
		r.With(httprate.LimitByIP(30, time.Minute)).Post("/keys", s.handleCreateSealKey)
		r.With(httprate.LimitByIP(30, time.Minute)).Put("/config/ip-allowlist", s.handleUpdateIPAllowlist)
	})

	return r
}
