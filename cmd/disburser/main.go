package main

import (
	"strings"

	"github.com/navariltd/disburser/internal/credential"
	"github.com/navariltd/disburser/internal/daraja"
	"github.com/navariltd/disburser/internal/disburse"
	"github.com/navariltd/disburser/internal/handlers"
	"github.com/navariltd/disburser/internal/payments"
	"github.com/navariltd/disburser/internal/requestlog"
	"github.com/navariltd/disburser/internal/settings"
	"github.com/navariltd/disburser/internal/token"
	"github.com/navariltd/disburser/pkg/auth"
	"github.com/navariltd/disburser/pkg/config"
	"github.com/navariltd/disburser/pkg/crypto"
	"github.com/navariltd/disburser/pkg/database"
	"github.com/navariltd/disburser/pkg/kafka"
	"github.com/navariltd/disburser/pkg/logging"
	"github.com/navariltd/disburser/pkg/monitoring"
	"github.com/navariltd/disburser/pkg/server"
	"github.com/navariltd/disburser/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("disburser")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Disburser (B2C Payments API)")

	dbURL := config.RequireEnv("DATABASE_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	encryptionKey := config.RequireEnv("ENCRYPTION_KEY")
	certificateDir := config.GetEnv("CERTIFICATE_DIR", "/etc/disburser/certs")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if config.GetEnvBool("AUTO_MIGRATE", true) {
		if err := database.ApplySchema(db); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
	}

	// Field encryptor for secrets at rest
	encryptor, err := crypto.DeriveFieldEncryptor([]byte(encryptionKey), "field-encryption")
	if err != nil {
		logger.WithError(err).Fatal("Failed to derive field encryptor")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("disburser", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("disburser", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": dbURL,
		"JWT_SECRET":   jwtSecret,
	}))
	healthChecker.AddCheck("certificates", monitoring.DirectoryHealthCheck("certificate", certificateDir))

	// Optional payment event stream
	var events disburse.EventPublisher
	if brokers := config.GetEnv("KAFKA_BROKERS", ""); brokers != "" {
		producer, err := kafka.NewProducer(strings.Split(brokers, ","), logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create kafka producer")
		}
		defer producer.Close()
		healthChecker.AddCheck("kafka", func() monitoring.CheckResult {
			if err := producer.HealthCheck(); err != nil {
				return monitoring.CheckResult{Status: monitoring.StatusDegraded, Message: err.Error()}
			}
			return monitoring.CheckResult{Status: monitoring.StatusHealthy}
		})
		events = producer
	}

	// Wire up the disbursement pipeline
	requestLog := requestlog.NewStore(db)
	paymentStore := payments.NewStore(db)
	settingsStore := settings.NewStore(db, encryptor)
	tokenStore := token.NewStore(db, encryptor, logger)

	gatewayClient := daraja.NewClient(requestLog, logger)
	tokenManager := token.NewManager(tokenStore, gatewayClient, logger)
	credentialResolver := credential.NewResolver(credential.NewFileStore(certificateDir), logger)
	journal := disburse.NewPostgresJournal(db)

	orchestrator := disburse.NewOrchestrator(paymentStore, settingsStore, tokenManager, credentialResolver, gatewayClient, events, logger)
	reconciler := disburse.NewReconciler(db, paymentStore, requestLog, journal, events, logger)

	// Custom disbursement metrics
	pipelineMetrics := &disburse.Metrics{
		Submissions:     metricsCollector.NewCounter("b2c_submissions_total", "Payment submissions by result", []string{"result"}),
		Reconciliations: metricsCollector.NewCounter("b2c_reconciliations_total", "Result callbacks by outcome", []string{"outcome"}),
		GatewayLatency:  metricsCollector.NewHistogram("b2c_gateway_request_duration_seconds", "Gateway submission duration", []string{"outcome"}, nil),
	}
	orchestrator.SetMetrics(pipelineMetrics)
	reconciler.SetMetrics(pipelineMetrics)

	h := handlers.NewHandlers(orchestrator, reconciler, paymentStore, settingsStore, logger)

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "disburser", healthChecker, metricsCollector)

	{
		// Operator endpoints require authentication
		protected := router.Group("")
		protected.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
		{
			protected.POST("/b2c/payments", h.CreatePayment)
			protected.GET("/b2c/payments/:id", h.GetPayment)
			protected.POST("/b2c/initiate-payment", h.InitiatePayment)
			protected.PUT("/b2c/settings", h.SaveSettings)
			protected.GET("/b2c/settings", h.GetSettings)
		}

		// Gateway callbacks (no auth, public endpoints)
		router.POST("/webhooks/b2c/results", h.ResultsWebhook)
		router.POST("/webhooks/b2c/timeout", h.TimeoutWebhook)
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("disburser", "18080")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
