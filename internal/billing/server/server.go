package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/subpay-io/subpay/internal/billing/adapters/http/handlers"
	"github.com/subpay-io/subpay/internal/billing/adapters/repository/postgres"
	"github.com/subpay-io/subpay/internal/billing/app/service"
	"github.com/subpay-io/subpay/internal/platform/cache"
	"github.com/subpay-io/subpay/internal/platform/config"
	"github.com/subpay-io/subpay/internal/platform/database"
	"github.com/subpay-io/subpay/internal/platform/logger"
	"github.com/subpay-io/subpay/internal/platform/messaging/kafka"
	"github.com/subpay-io/subpay/internal/platform/metrics"
	"github.com/subpay-io/subpay/internal/platform/telemetry"
	"github.com/subpay-io/subpay/pkg/middleware"
)

// jobTimeout bounds one cron job run.
const jobTimeout = 5 * time.Minute

// Server represents the billing service server
type Server struct {
	config    *config.Config
	logger    logger.Logger
	telemetry *telemetry.Telemetry

	httpServer *http.Server
	db         *database.DB
	redis      *cache.RedisClient
	publisher  *kafka.Publisher
	cron       *cron.Cron
	metrics    *metrics.Metrics

	subscriptionService *service.SubscriptionService
	reconcileService    *service.ReconcileService
	catalogService      *service.CatalogService
	planService         *service.PlanService
	maintenanceService  *service.MaintenanceService
}

// Option is a server configuration option
type Option func(*Server)

// WithConfig sets the server config
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithLogger sets the server logger
func WithLogger(logger logger.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTelemetry sets the server telemetry
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) {
		s.telemetry = t
	}
}

// New creates a new server instance
func New(opts ...Option) (*Server, error) {
	s := &Server{}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return s, nil
}

func (s *Server) initialize() error {
	db, err := database.New(s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	redisClient, err := cache.NewRedisClient(s.config.Redis, s.config.Service.Name)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	s.redis = redisClient

	publisher, err := kafka.NewPublisher(s.config.Kafka.Brokers)
	if err != nil {
		return fmt.Errorf("failed to initialize kafka producer: %w", err)
	}
	s.publisher = publisher

	s.metrics = metrics.New("subpay")

	repos := postgres.NewRepositories(db)
	providers := service.NewProviderFactory(s.logger)
	catalogs := service.NewCatalogFactory(s.logger)
	notifier := service.NewKafkaNotifier(
		publisher,
		s.config.Kafka.NotificationTopic,
		s.config.Kafka.AlertTopic,
		s.logger,
	)

	s.reconcileService = service.NewReconcileService(
		db,
		postgres.NewRepositories,
		notifier,
		s.metrics,
		s.logger,
	)
	s.subscriptionService = service.NewSubscriptionService(
		repos,
		db,
		postgres.NewRepositories,
		providers,
		redisClient,
		s.metrics,
		s.logger,
		s.config.Billing,
	)
	s.catalogService = service.NewCatalogService(repos, catalogs, s.logger, s.config.Billing.DefaultCurrency)
	s.planService = service.NewPlanService(repos, s.logger, s.config.Billing.AllowZeroPriceDefault)
	s.maintenanceService = service.NewMaintenanceService(repos, s.metrics, s.logger)

	if err := s.setupCron(); err != nil {
		return fmt.Errorf("failed to schedule jobs: %w", err)
	}

	s.setupHTTPServer(repos, providers)

	return nil
}

func (s *Server) setupCron() error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.config.Billing.URLPurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := s.maintenanceService.PurgeExpiredURLs(ctx); err != nil {
			s.logger.Error("Payment URL purge failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("url purge job: %w", err)
	}

	_, err = s.cron.AddFunc(s.config.Billing.CatalogSyncSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := s.catalogService.SyncAll(ctx); err != nil {
			s.logger.Error("Catalog sync failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("catalog sync job: %w", err)
	}

	return nil
}

func (s *Server) setupHTTPServer(repos *service.Repositories, providers service.ProviderFactory) {
	router := mux.NewRouter()

	router.Use(mux.MiddlewareFunc(middleware.Logging(&middleware.LoggingConfig{
		Logger:    s.logger,
		SkipPaths: []string{"/health/live", "/health/ready", "/metrics"},
	})))
	router.Use(mux.MiddlewareFunc(middleware.RecoveryWithLogger(s.logger)))
	router.Use(mux.MiddlewareFunc(middleware.SecurityHeaders()))
	router.Use(mux.MiddlewareFunc(middleware.RequestSizeLimit(1 << 20)))
	router.Use(mux.MiddlewareFunc(s.metrics.HTTPMiddleware))

	// Health checks
	router.HandleFunc("/health/live", s.handleLiveness).Methods("GET")
	router.HandleFunc("/health/ready", s.handleReadiness).Methods("GET")
	router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	// Provider callbacks live outside the identity-guarded API tree.
	webhookHandler := handlers.NewWebhookHandler(repos, providers, s.reconcileService, s.logger)
	webhookHandler.RegisterRoutes(router)

	// Subscriber routes
	apiRouter := router.PathPrefix("/api/v1/billing").Subrouter()
	apiRouter.Use(mux.MiddlewareFunc(middleware.CORS(middleware.DefaultCORSConfig())))
	apiRouter.Use(mux.MiddlewareFunc(middleware.Identity()))

	subscriptionHandler := handlers.NewSubscriptionHandler(s.subscriptionService, s.logger)
	subscriptionHandler.RegisterRoutes(apiRouter)

	// Operator routes
	internalRouter := router.PathPrefix("/internal/v1/billing").Subrouter()
	planHandler := handlers.NewPlanHandler(s.planService, repos, s.catalogService, s.config.Billing.PublicBaseURL, s.logger)
	planHandler.RegisterRoutes(internalRouter)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.HTTP.Port),
		Handler:      router,
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
	}
}

// Start starts the server
func (s *Server) Start() error {
	s.cron.Start()
	s.logger.Info("Starting HTTP server", "port", s.config.HTTP.Port)
	return s.httpServer.ListenAndServe()
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Error("Kafka producer close error", "error", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Redis close error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Database close error", "error", err)
		}
	}

	return nil
}

// Health check handlers
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"alive"}`)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"not ready","error":"%s"}`, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ready"}`)
}
