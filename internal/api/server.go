// Package api serves the ledger over HTTP: position and spread CRUD, wheel
// cycle views, live price refresh and account summaries.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheel_ledger/internal/lifecycle"
	"github.com/eddiefleurent/wheel_ledger/internal/market"
	"github.com/eddiefleurent/wheel_ledger/internal/pricing"
	"github.com/eddiefleurent/wheel_ledger/internal/storage"
)

// AccountHeader names the account that owns the records of a request.
const AccountHeader = "X-Account-ID"

// Config holds listener settings.
type Config struct {
	Addr      string
	AuthToken string
}

// Deps are the services the handlers call.
type Deps struct {
	Storage    storage.Interface
	Reconciler *lifecycle.Reconciler
	Refresher  *pricing.Refresher // nil disables price refresh endpoints
	Calendar   *market.Calendar
	Clock      market.Clock
}

// Server is the ledger HTTP API.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	storage    storage.Interface
	reconciler *lifecycle.Reconciler
	refresher  *pricing.Refresher
	calendar   *market.Calendar
	clock      market.Clock
	logger     *logrus.Logger
	addr       string
	authToken  string
}

// NewServer wires routes over deps.
func NewServer(cfg Config, deps Deps, logger *logrus.Logger) *Server {
	if deps.Clock == nil {
		deps.Clock = market.SystemClock{}
	}
	if deps.Calendar == nil {
		deps.Calendar = market.DefaultCalendar()
	}
	s := &Server{
		router:     chi.NewRouter(),
		storage:    deps.Storage,
		reconciler: deps.Reconciler,
		refresher:  deps.Refresher,
		calendar:   deps.Calendar,
		clock:      deps.Clock,
		logger:     logger,
		addr:       cfg.Addr,
		authToken:  cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.accountMiddleware)

		r.Route("/positions", func(r chi.Router) {
			r.Get("/", s.handleListPositions)
			r.Post("/", s.handleCreatePosition)
			r.Get("/summary", s.handlePositionSummary)
			r.Get("/by-stock", s.handlePositionsByStock)
			r.Get("/roi-summary", s.handleROISummary)
			r.Post("/refresh-prices", s.handleRefreshPrices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPosition)
				r.Put("/", s.handleUpdatePosition)
				r.Delete("/", s.handleDeletePosition)
				r.Get("/cycle", s.handleGetCycle)
				r.Post("/close", s.handleClosePosition)
				r.Post("/refresh-price", s.handleRefreshPrice)
			})
		})

		r.Route("/spreads", func(r chi.Router) {
			r.Get("/", s.handleListSpreads)
			r.Post("/", s.handleCreateSpread)
			r.Get("/summary", s.handleSpreadSummary)
			r.Get("/by-stock", s.handleSpreadsByStock)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSpread)
				r.Put("/", s.handleUpdateSpread)
				r.Delete("/", s.handleDeleteSpread)
			})
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting ledger API on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// today is the exchange-local trading date used for metrics.
func (s *Server) today() time.Time {
	return s.calendar.Today(s.clock.Now())
}

// reconcile closes expired and reopens extended positions of owner before a
// read. Failures are logged; the read proceeds on whatever was persisted.
func (s *Server) reconcile(ctx context.Context, owner string) {
	if s.reconciler == nil {
		return
	}
	if _, err := s.reconciler.Reconcile(ctx, owner); err != nil {
		s.logger.WithError(err).WithField("owner", owner).Warn("Reconciliation before read failed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.clock.Now().Unix(),
	}
	s.writeJSON(w, http.StatusOK, health)
}
