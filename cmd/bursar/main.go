package main

import (
	"context"

	"agencyhub/internal/handlers"
	"agencyhub/internal/razorpay"
	"agencyhub/pkg/auth"
	"agencyhub/pkg/billing"
	"agencyhub/pkg/config"
	"agencyhub/pkg/database"
	"agencyhub/pkg/logging"
	"agencyhub/pkg/monitoring"
	"agencyhub/pkg/server"
	"agencyhub/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("bursar")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Bursar (Payments API)")

	dbURL := config.RequireEnv("DATABASE_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	providerKeyID := config.RequireEnv("PROVIDER_KEY_ID")
	providerKeySecret := config.RequireEnv("PROVIDER_KEY_SECRET")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("bursar", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("bursar", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":        dbURL,
		"JWT_SECRET":          jwtSecret,
		"PROVIDER_KEY_ID":     providerKeyID,
		"PROVIDER_KEY_SECRET": providerKeySecret,
	}))

	// Create custom payment metrics
	metrics := &handlers.BursarMetrics{
		OrdersCreated:  metricsCollector.NewCounter("orders_created_total", "Token purchase orders created", []string{"tier", "status"}),
		Verifications:  metricsCollector.NewCounter("payment_verifications_total", "Payment verification attempts", []string{"result"}),
		TokensCredited: metricsCollector.NewCounter("tokens_credited_total", "Tokens credited to tenant balances", []string{"tier"}),
	}
	metrics.DBQueries, metrics.DBDuration, metrics.DBConnections = metricsCollector.CreateDatabaseMetrics()

	// Payment provider client: constructed once here and injected, never a
	// lazily-built singleton.
	provider, err := razorpay.NewClient(razorpay.Config{
		KeyID:     providerKeyID,
		KeySecret: providerKeySecret,
		BaseURL:   config.GetEnv("PROVIDER_BASE_URL", ""),
		Logger:    logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create payment provider client")
	}

	pricing := billing.LoadPriceTable()
	payments := handlers.NewPayments(db, logger, provider, pricing, metrics)

	// Initialize and start JobManager for reconciliation
	jobManager := handlers.NewJobManager(db, payments, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobManager.Start(ctx)
	defer jobManager.Stop()

	logger.Info("JobManager started - payment reconciliation active")

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "bursar", healthChecker, metricsCollector)

	// API routes (root level - nginx adds /api/payments/ prefix)
	{
		protected := router.Group("")
		protected.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
		{
			protected.POST("/payments/orders", payments.CreateTokenOrder)
			protected.POST("/payments/verify", payments.VerifyTokenPayment)
			protected.GET("/payments/balance", payments.GetBalance)
			protected.GET("/payments/purchases", payments.ListPurchases)
		}
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("bursar", "18007")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
