package main

import (
	"context"
	"strings"

	"paypadm/core/internal/access"
	"paypadm/core/internal/handlers"
	"paypadm/core/internal/ledger"
	"paypadm/core/internal/messages"
	"paypadm/core/internal/metrics"
	"paypadm/core/internal/presence"
	"paypadm/core/internal/websocket"
	"paypadm/core/pkg/auth"
	"paypadm/core/pkg/config"
	"paypadm/core/pkg/database"
	"paypadm/core/pkg/kafka"
	"paypadm/core/pkg/logging"
	"paypadm/core/pkg/monitoring"
	"paypadm/core/pkg/redis"
	"paypadm/core/pkg/server"
	"paypadm/core/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("paymaster")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Paymaster (Monetized Conversations)")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("paymaster", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("paymaster", version.Version, version.GitCommit)

	// Create custom metrics
	serviceMetrics := &metrics.Metrics{
		MessagesAppended: metricsCollector.NewCounter("messages_appended_total", "Messages appended to conversations", []string{"source"}),
		MessagePageSize:  metricsCollector.NewHistogram("message_page_size", "Messages returned per history page", []string{"operation"}, []float64{1, 5, 10, 25, 50, 100, 200}),
		ChargesTotal:     metricsCollector.NewCounter("charges_total", "Ledger charges", []string{"tx_type", "outcome"}),
		ChargeAmount:     metricsCollector.NewHistogram("charge_amount_cents", "Charge amounts in cents", []string{"tx_type"}, []float64{100, 500, 1000, 2500, 5000, 10000, 50000}),
		GateDecisions:    metricsCollector.NewCounter("access_gate_decisions_total", "Access gate decisions", []string{"outcome"}),
		HubConnections:   metricsCollector.NewGauge("websocket_hub_connections_active", "Active WebSocket hub connections", []string{"state"}),
		EventsPublished:  metricsCollector.NewCounter("events_published_total", "Events published to the monetization topic", []string{"event_type"}),
	}
	serviceMetrics.KafkaMessages, serviceMetrics.KafkaDuration, serviceMetrics.KafkaLag = metricsCollector.CreateKafkaMetrics()

	// Connect to PostgreSQL
	dbConfig := database.DefaultConfig()
	dbConfig.URL = config.RequireEnv("DATABASE_URL")
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Redis for presence
	redisClient, err := redis.NewClientFromURL(ctx, config.RequireEnv("REDIS_URL"))
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Setup Kafka producer and consumer
	brokers := strings.Split(config.RequireEnv("KAFKA_BROKERS"), ",")
	groupID := config.GetEnv("KAFKA_GROUP_ID", "paymaster-group")
	clientID := config.GetEnv("KAFKA_CLIENT_ID", "paymaster")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	serviceToken := config.RequireEnv("SERVICE_TOKEN")

	producer, err := kafka.NewProducer(brokers, clientID, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Kafka producer")
	}
	defer producer.Close()

	consumer, err := kafka.NewConsumer(brokers, groupID, clientID, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Kafka consumer")
	}
	defer consumer.Close()

	// Initialize WebSocket hub
	hub := websocket.NewHub(logger, serviceMetrics)
	go hub.Run()

	// Initialize domain components
	store := messages.NewStore(db, logger)
	gate := access.NewGate(db, logger)
	coordinator := ledger.NewCoordinator(db, logger)
	tracker := presence.NewTracker(redisClient, logger)

	paymasterHandlers := handlers.NewPaymasterHandlers(store, gate, coordinator, tracker, hub, producer, logger, serviceMetrics)

	// Every replica consumes the monetization topic to feed its local hub
	consumer.AddHandler(kafka.TopicMonetizationEvents, paymasterHandlers.HandleMonetizationEvent)

	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Kafka consumer error")
		}
	}()

	// Push presence transitions from other replicas to local clients
	go func() {
		err := tracker.Watch(ctx, func(change presence.StatusChange) {
			hub.BroadcastToUser(change.UserID, "presence_changed", map[string]interface{}{
				"user_id": change.UserID,
				"online":  change.Online,
			})
		})
		if err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Presence watch error")
		}
	}()

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("kafka", monitoring.KafkaHealthCheck(producer.GetClient()))
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"KAFKA_BROKERS": strings.Join(brokers, ","),
		"JWT_SECRET":    jwtSecret,
	}))

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "paymaster", healthChecker, metricsCollector)

	// Public API routes with user auth
	v1 := router.Group("/v1")
	v1.Use(auth.UserAuthMiddleware([]byte(jwtSecret)))
	{
		v1.POST("/conversations/resolve", paymasterHandlers.HandleResolveConversation)
		v1.POST("/conversations/:id/messages", paymasterHandlers.HandleSendMessage)
		v1.GET("/conversations/:id/messages", paymasterHandlers.HandleListMessages)
		v1.POST("/conversations/:id/read", paymasterHandlers.HandleMarkRead)
		v1.GET("/access", paymasterHandlers.HandleCheckAccess)
		v1.POST("/charge", paymasterHandlers.HandleCharge)
		v1.GET("/accounts/:id/balance", paymasterHandlers.HandleBalance)
		v1.POST("/presence/heartbeat", paymasterHandlers.HandleHeartbeat)
		v1.GET("/presence", paymasterHandlers.HandlePresenceQuery)
	}

	// WebSocket endpoint
	router.GET("/ws", paymasterHandlers.HandleWebSocket)

	// Admin routes with service auth
	admin := router.Group("/admin")
	admin.Use(auth.ServiceAuthMiddleware(serviceToken))
	{
		admin.POST("/accounts", paymasterHandlers.HandleCreateAccount)
		admin.POST("/accounts/:id/credit", paymasterHandlers.HandleCreditAccount)
	}

	router.NoRoute(paymasterHandlers.HandleNotFound)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("paymaster", "18020")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
