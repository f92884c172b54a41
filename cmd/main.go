package main

import (
	"context"
	"fmt"
	"log"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"agentpay/internal/caching"
	"agentpay/internal/config"
	"agentpay/internal/handlers"
	"agentpay/internal/jobs"
	"agentpay/internal/middleware"
	"agentpay/internal/providers"
	"agentpay/internal/services"
	"agentpay/internal/storage"
	"agentpay/pkg/database"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	// Storage backend selection
	var store storage.Backend
	switch cfg.StorageKind {
	case "postgres":
		if cfg.DatabaseURL == "" {
			log.Fatal("DATABASE_URL environment variable is required for the postgres backend")
		}
		pool, err := database.NewPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		store = storage.NewPostgresBackend(pool)
	case "memory":
		store = storage.NewMemoryBackend()
		log.Printf("WARNING: Using in-memory storage, data will not survive restarts")
	default:
		log.Fatalf("Unknown storage backend %q", cfg.StorageKind)
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	// Plan cache
	planCache := caching.NewRedisPlanCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	// Create services
	planService := services.NewPlanService(store, planCache)
	usageService := services.NewUsageService(store)
	subscriptionService := services.NewSubscriptionService(store)
	meteringService := services.NewMeteringService(store, subscriptionService, cfg.DefaultPlanID)
	gates := services.NewGates(meteringService, subscriptionService, usageService)

	// Payment provider selection
	var provider providers.PaymentProvider
	if cfg.StripeAPIKey != "" {
		provider = providers.NewStripeProvider(cfg.StripeAPIKey, store)
	} else {
		provider = providers.NewMockProvider(store)
		log.Printf("WARNING: Using mock payment provider, no real charges will be made")
	}
	billingService := services.NewBillingService(store, planService, meteringService, provider)

	// Create handlers
	planHandlers := handlers.NewPlanHandlers(planService)
	subscriptionHandlers := handlers.NewSubscriptionHandlers(subscriptionService)
	usageHandlers := handlers.NewUsageHandlers(usageService, meteringService)
	paymentHandlers := handlers.NewPaymentHandlers(billingService)
	webhookHandlers := handlers.NewWebhookHandlers(store, subscriptionService, cfg.WebhookSecret)
	healthHandlers := handlers.NewHealthHandlers(store)

	// Background jobs
	sweeper := jobs.NewSubscriptionSweeper(store)
	var exporter *jobs.UsageExporter
	if cfg.MinioEndpoint != "" {
		var err error
		exporter, err = jobs.NewUsageExporter(store, usageService,
			cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
		if err != nil {
			log.Printf("WARN: usage exporter disabled: %v", err)
			exporter = nil
		} else if err := exporter.EnsureBucketExists(context.Background()); err != nil {
			log.Printf("WARN: usage exporter disabled, bucket check failed: %v", err)
			exporter = nil
		}
	}
	scheduler, err := jobs.NewJobScheduler(sweeper, exporter)
	if err != nil {
		log.Fatalf("Failed to create job scheduler: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoint (no auth required)
	e.GET("/health", healthHandlers.Health)

	// Webhook intake is authenticated by signature, not JWT
	e.POST("/webhooks/payment", webhookHandlers.PaymentWebhook)

	// API routes
	v1 := e.Group("/api/v1")
	v1.Use(middleware.JWTMiddleware(cfg.JWTSecret))

	// Plan routes
	v1.GET("/plans", planHandlers.ListPlans)
	v1.POST("/plans", planHandlers.CreatePlan)
	v1.GET("/plans/:id", planHandlers.GetPlan)

	// Subscription routes
	v1.GET("/subscriptions", subscriptionHandlers.GetSubscription)
	v1.POST("/subscriptions", subscriptionHandlers.Subscribe)
	v1.DELETE("/subscriptions", subscriptionHandlers.CancelSubscription)
	v1.POST("/subscriptions/renew", subscriptionHandlers.RenewSubscription)

	// Usage routes
	v1.GET("/usage", usageHandlers.GetUsage)
	v1.GET("/usage/count", usageHandlers.GetUsageCount)
	v1.POST("/usage", usageHandlers.RecordUsage)
	v1.GET("/access", usageHandlers.CheckAccess)

	// Payment routes
	v1.POST("/payments", paymentHandlers.ChargeFeature)
	v1.GET("/payments/:id", paymentHandlers.GetTransaction)
	v1.POST("/payments/:id/refund", paymentHandlers.RefundTransaction)

	// Example of the paywall middleware guarding a metered route
	paywall := middleware.NewPaywallMiddleware(gates)
	v1.GET("/premium/ping", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	}, paywall.RequirePaidFeature("premium_ping", nil))

	log.Printf("agentpay server v%s starting on port %s", version, cfg.Port)
	e.Logger.Fatal(e.Start(fmt.Sprintf(":%s", cfg.Port)))
}
