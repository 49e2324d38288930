package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/postnow/server/internal/module/audit"
	"github.com/postnow/server/internal/module/billing"
	"github.com/postnow/server/internal/module/campaign"
	"github.com/postnow/server/internal/module/credits"
	"github.com/postnow/server/internal/module/idea"
	"github.com/postnow/server/internal/module/payment"
	"github.com/postnow/server/internal/module/user"
	sharedcache "github.com/postnow/server/internal/shared/cache"
	"github.com/postnow/server/internal/shared/config"
	"github.com/postnow/server/internal/shared/database"
	"github.com/postnow/server/internal/shared/logger"
	"github.com/postnow/server/internal/utils/metrics"
	"github.com/postnow/server/internal/utils/middleware"
)

// App wires the modules together and owns the process-wide resources.
type App struct {
	config  *config.Config
	db      *gorm.DB
	redis   redis.UniversalClient
	router  *gin.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics

	tokens *user.TokenManager

	// Handlers
	userHandler     *user.Handler
	billingHandler  *billing.Handler
	creditsHandler  *credits.Handler
	paymentHandler  *payment.Handler
	webhookHandler  *payment.WebhookHandler
	ideaHandler     *idea.Handler
	campaignHandler *campaign.Handler

	// Services kept for cross-module wiring
	billingService billing.ServiceInterface
	creditsService credits.ServiceInterface
	paymentService payment.ServiceInterface
	userService    user.ServiceInterface
	auditService   *audit.Service
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	app := &App{
		config:  cfg,
		logger:  log,
		metrics: metrics.New("postnow"),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := app.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Redis is optional; without it rate limiting is disabled.
	if cfg.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis connection failed, rate limiting disabled", zap.Error(err))
		} else {
			app.redis = redisClient
		}
	}

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}

	app.router = app.setupRouter()
	app.registerRoutes()

	return app, nil
}

// migrate creates or updates the schema and seeds the plan catalog.
func (a *App) migrate() error {
	err := a.db.AutoMigrate(
		&user.User{},
		&billing.Plan{},
		&billing.UserSubscription{},
		&credits.UserCredits{},
		&credits.CreditTransaction{},
		&payment.WebhookEvent{},
		&idea.Idea{},
		&audit.Entry{},
	)
	if err != nil {
		return err
	}
	return billing.SeedPlans(context.Background(), a.db)
}

// initModules constructs every module in dependency order.
func (a *App) initModules() error {
	cfg := a.config

	// Audit trail, consumed by the other modules as their AuditLogger.
	a.auditService = audit.NewService(audit.NewRepository(a.db), a.logger)

	// User module
	a.tokens = user.NewTokenManager(&cfg.Auth)
	userRepo := user.NewRepository(a.db)
	userService := user.NewService(userRepo, a.tokens, a.auditService, cfg.Auth.AdminEmails, a.logger)
	a.userService = userService
	a.userHandler = user.NewHandler(userService)

	// Billing module
	billingService := billing.NewService(billing.NewRepository(a.db), a.auditService, a.logger)
	a.billingService = billingService
	a.billingHandler = billing.NewHandler(billingService)

	// Credit ledger
	prices, err := credits.NewPriceTable(cfg.Credits.OperationPrices)
	if err != nil {
		return fmt.Errorf("load operation prices: %w", err)
	}
	creditsService := credits.NewService(credits.NewRepository(a.db), prices, billingService, a.auditService, a.metrics, a.logger)
	a.creditsService = creditsService
	a.creditsHandler = credits.NewHandler(creditsService, prices)

	// Payment module
	stripeProvider := payment.NewStripeProvider(&cfg.Stripe)
	paymentService := payment.NewService(
		payment.NewRepository(a.db),
		stripeProvider,
		billingService,
		creditsService,
		userService,
		&cfg.Stripe,
		a.metrics,
		a.logger,
	)
	a.paymentService = paymentService
	a.paymentHandler = payment.NewHandler(paymentService)
	a.webhookHandler = payment.NewWebhookHandler(paymentService, a.logger)

	// Idea generation
	generator := idea.NewHTTPGenerator(&cfg.AI, a.logger)
	ideaService := idea.NewService(
		idea.NewRepository(a.db),
		generator,
		creditsService,
		userService,
		a.metrics,
		a.logger,
	)
	a.ideaHandler = idea.NewHandler(ideaService)

	// Email campaigns
	sender := campaign.NewSMTPSender(&cfg.Email)
	campaignService := campaign.NewService(
		userRepo,
		generator,
		creditsService,
		sender,
		&cfg.Campaign,
		a.metrics,
		a.logger,
	)
	a.campaignHandler = campaign.NewHandler(campaignService)

	return nil
}

// setupRouter creates the Gin router with the global middleware chain.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// registerRoutes attaches every module's routes to the router.
func (a *App) registerRoutes() {
	v1 := a.router.Group("/api/v1")

	var limiter *sharedcache.RateLimiter
	if a.redis != nil {
		limiter = sharedcache.NewRateLimiter(a.redis)
	}

	public := v1.Group("")
	if limiter != nil {
		public.Use(middleware.RateLimit(limiter, middleware.DefaultRateLimitConfig()))
	}

	authed := v1.Group("")
	authed.Use(middleware.RequireAuth(a.tokens))

	// Generation endpoints get their own limit on top of auth.
	generation := v1.Group("")
	generation.Use(middleware.RequireAuth(a.tokens))
	if limiter != nil {
		generation.Use(middleware.RateLimit(limiter, middleware.DefaultRateLimitConfig()))
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.RequireAuth(a.tokens), middleware.RequireAdmin())

	// Webhooks authenticate by signature, not by bearer token.
	webhooks := a.router.Group("/webhooks")

	a.userHandler.RegisterRoutes(public, authed)
	a.billingHandler.RegisterRoutes(public, authed)
	a.creditsHandler.RegisterRoutes(authed)
	a.paymentHandler.RegisterRoutes(authed, admin)
	a.webhookHandler.RegisterRoutes(webhooks)
	a.ideaHandler.RegisterRoutes(generation)
	a.campaignHandler.RegisterRoutes(admin)
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases process-wide resources.
func (a *App) Stop() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
