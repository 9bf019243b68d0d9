// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/proptor/proptor/internal/actions"
	"github.com/proptor/proptor/internal/admin"
	"github.com/proptor/proptor/internal/auth"
	"github.com/proptor/proptor/internal/billing"
	"github.com/proptor/proptor/internal/cache"
	"github.com/proptor/proptor/internal/config"
	"github.com/proptor/proptor/internal/contacts"
	"github.com/proptor/proptor/internal/health"
	"github.com/proptor/proptor/internal/logging"
	"github.com/proptor/proptor/internal/metrics"
	"github.com/proptor/proptor/internal/notify"
	"github.com/proptor/proptor/internal/ratelimit"
	"github.com/proptor/proptor/internal/realtime"
	"github.com/proptor/proptor/internal/risk"
	"github.com/proptor/proptor/internal/security"
	"github.com/proptor/proptor/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	authMgr        *auth.Manager
	contactStore   contacts.Store
	contactService *contacts.Service
	riskService    *risk.Service
	riskRunner     *risk.Runner
	calculator     risk.Calculator
	actionService  *actions.Service
	notifyService  *notify.Service
	dispatcher     *notify.Dispatcher
	subStore       notify.SubscriptionStore
	realtimeHub    *realtime.Hub
	cache          *cache.Cache
	healthReg      *health.Registry
	rateLimiter    *ratelimit.Limiter
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCalculator sets a custom risk calculator (for testing)
func WithCalculator(c risk.Calculator) Option {
	return func(s *Server) {
		s.calculator = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}

	// Apply options first (may set calculator/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Redis read cache (optional; disabled without REDIS_URL)
	s.cache = cache.New(cfg.RedisURL, s.logger)

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		riskStore   risk.Store
		actionStore actions.Store
		notifStore  notify.NotificationStore
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		// API keys with Postgres
		authStore := auth.NewPostgresStore(db)
		if err := authStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate auth store", "error", err)
		}
		s.authMgr = auth.NewManager(authStore)

		// Contact book with Postgres
		contactStore := contacts.NewPostgresStore(db)
		if err := contactStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate contact store", "error", err)
		}
		s.contactStore = contactStore

		// Risk metrics and alerts with Postgres (joins contacts for names)
		pgRisk := risk.NewPostgresStore(db)
		if err := pgRisk.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate risk store", "error", err)
		}
		riskStore = pgRisk

		// Recovery actions with Postgres
		pgActions := actions.NewPostgresStore(db)
		if err := pgActions.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate action store", "error", err)
		}
		actionStore = pgActions

		// Notification feed and webhook subscriptions with Postgres
		pgNotif := notify.NewPostgresNotificationStore(db)
		if err := pgNotif.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate notification store", "error", err)
		}
		notifStore = pgNotif

		pgSubs := notify.NewPostgresSubscriptionStore(db)
		if err := pgSubs.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate webhook store", "error", err)
		}
		s.subStore = pgSubs
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		s.authMgr = auth.NewManager(auth.NewMemoryStore())

		contactStore := contacts.NewMemoryStore()
		s.contactStore = contactStore

		// The memory store has no SQL join for contact names, so it gets a
		// resolver backed by the contact store.
		riskStore = risk.NewMemoryStore().WithResolver(&contactResolverAdapter{contactStore})
		actionStore = actions.NewMemoryStore()
		notifStore = notify.NewMemoryNotificationStore()
		s.subStore = notify.NewMemorySubscriptionStore()
	}

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Webhook dispatcher + in-app notification feed
	s.dispatcher = notify.NewDispatcher(s.subStore, s.logger)
	s.notifyService = notify.NewService(notifStore, s.logger).
		WithDispatcher(s.dispatcher).
		WithPublisher(s.realtimeHub)

	// Contact book
	s.contactService = contacts.NewService(s.contactStore).WithCache(s.cache)

	// Risk engine: persistence + alert policy, then the bulk runner on top
	s.riskService = risk.NewService(riskStore, cfg.RiskAlertThreshold, cfg.RiskHighThreshold).
		WithPublisher(s.realtimeHub).
		WithCache(s.cache)

	if s.calculator == nil {
		s.calculator = risk.NewHTTPCalculator(cfg.RiskCalculatorURL)
	}
	pace := time.Duration(cfg.RiskPaceMS) * time.Millisecond
	s.riskRunner = risk.NewRunner(
		s.riskService,
		s.calculator,
		&contactSourceAdapter{s.contactService},
		pace,
	).WithNotifier(s.notifyService)
	s.logger.Info("risk analysis enabled",
		"calculator", cfg.RiskCalculatorURL,
		"alertThreshold", cfg.RiskAlertThreshold,
		"highThreshold", cfg.RiskHighThreshold,
	)

	// Recovery actions, optionally issuing Stripe discount codes
	var discounts billing.DiscountProvider = billing.NoopProvider{}
	if cfg.StripeAPIKey != "" {
		discounts = billing.NewStripeProvider(cfg.StripeAPIKey)
		s.logger.Info("stripe discount offers enabled")
	}
	s.actionService = actions.NewService(actionStore, discounts).WithNotifier(s.notifyService)

	s.registerHealthChecks()

	s.logger.Info("API authentication enabled")

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) registerHealthChecks() {
	if s.db != nil {
		db := s.db
		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}
	if s.cache.Enabled() {
		s.healthReg.Register("cache", func(ctx context.Context) health.Status {
			// The cache degrades to a no-op on failure, so it never makes
			// the service unhealthy. Reported for visibility only.
			return health.Status{Name: "cache", Healthy: true, Detail: "enabled"}
		})
	}
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Dashboard (browser entry point)
	s.router.GET("/", dashboardHandler)

	// WebSocket for real-time streaming (authenticated; the dashboard passes
	// the API key as a query param since browsers can't set headers here)
	s.router.GET("/ws", s.websocketHandler)

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :id URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.IDParamMiddleware())

	authHandler := auth.NewHandler(s.authMgr)

	// PUBLIC ROUTES (no auth required)
	v1.GET("/auth/info", authHandler.Info)
	v1.POST("/auth/signup", authHandler.Signup)

	// PROTECTED ROUTES (require API key)
	protected := v1.Group("")
	protected.Use(auth.Middleware(s.authMgr), auth.RequireAuth(s.authMgr))
	{
		// API key management
		protected.GET("/auth/keys", authHandler.ListKeys)
		protected.POST("/auth/keys", authHandler.CreateKey)
		protected.DELETE("/auth/keys/:keyId", authHandler.RevokeKey)
		protected.POST("/auth/keys/:keyId/regenerate", authHandler.RegenerateKey)
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		// Contact book + sales funnel
		contacts.NewHandler(s.contactService).RegisterProtectedRoutes(protected)

		// Risk analysis: bulk runs, metrics, summary, alerts
		risk.NewHandler(s.riskService, s.riskRunner).RegisterProtectedRoutes(protected)

		// Recovery actions
		actions.NewHandler(s.actionService).RegisterProtectedRoutes(protected)

		// Notification feed + webhook subscriptions
		notify.NewHandler(s.notifyService, s.subStore).RegisterProtectedRoutes(protected)
	}

	// Admin routes - operational visibility, guarded by X-Admin-Secret
	adminGroup := v1.Group("/admin")
	adminGroup.Use(auth.Middleware(s.authMgr), auth.RequireAuth(s.authMgr), auth.RequireAdmin())
	admin.NewHandler(s.realtimeHub, s.riskRunner).RegisterRoutes(adminGroup)
}

// websocketHandler upgrades an authenticated connection to the realtime hub.
func (s *Server) websocketHandler(c *gin.Context) {
	rawKey := c.Query("apiKey")
	if rawKey == "" {
		header := c.GetHeader("Authorization")
		rawKey = strings.TrimPrefix(header, "Bearer ")
	}
	if rawKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "missing_api_key",
			"message": "Provide an API key via ?apiKey= or Authorization header",
		})
		return
	}

	key, err := s.authMgr.ValidateKey(c.Request.Context(), rawKey)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_api_key",
			"message": "API key is invalid or revoked",
		})
		return
	}

	s.realtimeHub.HandleWebSocket(c.Writer, c.Request, key.UserID)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	allHealthy, statuses := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Proptor",
		"description": "Real-estate CRM with deal risk analysis",
		"version":     "0.1.0",
		"signup":      "POST /v1/auth/signup with {email, name} to get an API key",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Export database pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, stats collector,
	// any in-flight risk run)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close the Redis connection pool
	if err := s.cache.Close(); err != nil {
		s.logger.Error("cache close error", "error", err)
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// contactSourceAdapter feeds the risk runner from the contact book without
// the risk package importing contacts.
type contactSourceAdapter struct {
	svc *contacts.Service
}

func (a *contactSourceAdapter) ActiveContacts(ctx context.Context, userID string) ([]risk.ContactRef, error) {
	list, err := a.svc.List(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	refs := make([]risk.ContactRef, 0, len(list))
	for _, c := range list {
		refs = append(refs, risk.ContactRef{ID: c.ID, Name: c.Name})
	}
	return refs, nil
}

// contactResolverAdapter gives the in-memory risk store contact names and
// stages for its read models.
type contactResolverAdapter struct {
	store contacts.Store
}

func (a *contactResolverAdapter) Resolve(ctx context.Context, contactID string) (name, stage string) {
	c, err := a.store.Get(ctx, contactID)
	if err != nil {
		return "", ""
	}
	return c.Name, string(c.Stage)
}
