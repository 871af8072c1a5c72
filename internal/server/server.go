package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lifelog/apiserver/config"
	"github.com/lifelog/apiserver/internal/auth"
	"github.com/lifelog/apiserver/internal/db"
	"github.com/lifelog/apiserver/internal/handlers"
	"github.com/lifelog/apiserver/internal/logger"
	"github.com/lifelog/apiserver/internal/metrics"
	"github.com/lifelog/apiserver/internal/mq"
	"github.com/lifelog/apiserver/internal/services"
	"github.com/lifelog/apiserver/internal/storage"
	"github.com/lifelog/apiserver/internal/store"
)

const rateLimitCleanupInterval = time.Minute

// Dependencies are the collaborators the router is built from. Objects and
// Events may be nil to disable exports and event publishing.
type Dependencies struct {
	Users      services.UserRepository
	Activities services.ActivityRepository
	Analytics  services.AnalyticsRepository
	Objects    services.ObjectStore
	Events     services.EventPublisher
}

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	objects    storage.Backend
	broker     mq.Backend
}

// New connects to postgres and the optional storage and broker backends and
// wires the API router.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	broker, err := mq.New(ctx, cfg.Events)
	if err != nil {
		_ = dbConn.Close()
		if objects != nil {
			_ = objects.Close()
		}
		return nil, fmt.Errorf("init mq: %w", err)
	}

	deps := Dependencies{
		Users:      store.NewUserRepository(dbConn),
		Activities: store.NewActivityRepository(dbConn),
		Analytics:  store.NewAnalyticsRepository(dbConn),
	}
	if objects != nil {
		deps.Objects = objects
	}
	if broker != nil {
		deps.Events = mq.NewActivityPublisher(broker, cfg.Events.Channel)
	}

	router := NewRouter(ctx, cfg, deps)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server.configured",
		"port", cfg.ServerPort,
		"env", cfg.Env,
		"timezone", cfg.Timezone,
		"mq_backend", cfg.Events.Backend,
		"storage_backend", cfg.Storage.Backend,
	)

	return &Server{
		httpServer: httpServer,
		db:         dbConn,
		objects:    objects,
		broker:     broker,
	}, nil
}

// NewRouter builds the full API router. ctx bounds background work such as
// rate limiter cleanup.
func NewRouter(ctx context.Context, cfg config.Config, deps Dependencies) *chi.Mux {
	debug := cfg.IsDevelopment()
	loc := cfg.Location()

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	authMiddleware := handlers.RequireAuth(issuer)

	authService := services.NewAuthService(deps.Users, issuer)
	activityService := services.NewActivityService(deps.Activities, deps.Events, loc)
	analyticsService := services.NewAnalyticsService(deps.Analytics, loc)
	exportService := services.NewExportService(deps.Activities, deps.Objects)

	limiter := handlers.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	limiter.StartCleanup(ctx, rateLimitCleanupInterval)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	// Forwarded headers are client controlled unless a proxy overwrites them.
	if cfg.TrustProxy {
		router.Use(middleware.RealIP)
	}
	router.Use(
		metrics.Middleware,
		handlers.RequestLogger,
		handlers.Recoverer(debug),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Timeout(60*time.Second),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.NotFound)

	router.Get("/", handlers.Index)
	router.Get("/health", handlers.Health)
	router.Handle("/metrics", metrics.Handler())
	router.With(authMiddleware).Get("/api/check-auth", handlers.CheckAuth)
	router.Route("/api/auth", func(r chi.Router) {
		r.Use(limiter.Handler)
		handlers.AuthRouter(r, authService, authMiddleware, debug)
	})
	router.Route("/api/activities", func(r chi.Router) {
		handlers.ActivityRouter(r, activityService, analyticsService, exportService, authMiddleware, debug)
	})

	return router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	logger.Info("server.listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the broker, storage and
// database handles.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		if cerr := s.broker.Close(); cerr != nil {
			logger.Warn("mq.close_failed", "err", cerr)
		}
	}
	if s.objects != nil {
		if cerr := s.objects.Close(); cerr != nil {
			logger.Warn("storage.close_failed", "err", cerr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
