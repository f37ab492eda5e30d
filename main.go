package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"localhost-events/internal/config"
	"localhost-events/internal/email"
	"localhost-events/internal/handlers"
	"localhost-events/internal/kafka"
	"localhost-events/internal/logger"
	"localhost-events/internal/middleware"
	"localhost-events/internal/models"
	rediswrap "localhost-events/internal/redis"
	"localhost-events/internal/services"
	"localhost-events/internal/storage"

	"github.com/gin-gonic/gin"
)

// Global logger instance
var log *logger.Logger

func main() {
	log = logger.NewLogger()
	defer log.Close()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn("ENV", "Error loading .env file, using environment variables")
	}

	log.LogProcess("STARTUP", "Localhost Events backend starting up...")

	cfg := config.Load()
	log.Info("CONFIG", "Configuration loaded successfully")

	log.LogProcess("DATABASE", "Initializing MySQL database...")
	store, err := storage.NewMySQLStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to initialize MySQL: "+err.Error())
	}
	defer store.Close()
	log.LogDatabase("INIT", "mysql", "MySQL storage initialized successfully")

	log.LogProcess("KAFKA", "Initializing Kafka producer...")
	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MockMode, log)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka producer: "+err.Error())
	}
	defer kafkaProducer.Close()

	log.LogProcess("KAFKA", "Initializing confirmation consumer...")
	kafkaConsumer, err := kafka.NewConfirmationConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka consumer: "+err.Error())
	}
	defer kafkaConsumer.Close()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr: cfg.Redis.Addr,
	})
	settledCache := rediswrap.NewRedis(redisClient)
	log.LogProcess("REDIS", "Redis client initialized")

	notifier := email.NewSender(cfg.SMTP)

	settlementService := services.NewSettlementService(store, kafkaProducer, notifier, settledCache, log)
	log.LogProcess("SERVICE", "Settlement service initialized")

	checkoutService, err := services.NewCheckoutService(store, cfg.Stripe, log)
	if err != nil {
		log.Fatal("STRIPE", "Failed to initialize checkout service: "+err.Error())
	}
	log.LogProcess("SERVICE", "Checkout service initialized")

	storefrontService := services.NewStorefrontService(store, log)

	purchaseHandler := handlers.NewPurchaseHandler(checkoutService, settlementService)
	storefrontHandler := handlers.NewStorefrontHandler(storefrontService)
	log.LogProcess("HANDLER", "All handlers initialized")

	// Consume asynchronous payment confirmations in the background. Only
	// transient storage failures bubble up, which makes the consumer
	// retry the message; permanent rejections are logged and dropped.
	go func() {
		log.LogKafka("START", kafka.ConfirmationTopic, "Starting confirmation consumer goroutine")
		err := kafkaConsumer.ConsumeConfirmations(context.Background(), func(req *models.SettlementRequest) error {
			_, err := settlementService.Settle(context.Background(), req)
			if err != nil {
				if errors.Is(err, services.ErrStoreUnavailable) {
					return err
				}
				log.Warn("KAFKA", fmt.Sprintf("Confirmation %s rejected: %v", req.PaymentRef, err))
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("KAFKA", "Consumer error: "+err.Error())
		}
	}()

	router := setupRouter(store, purchaseHandler, storefrontHandler)
	log.LogProcess("ROUTER", "HTTP router configured")

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.LogProcess("SERVER", "Starting HTTP server on "+cfg.Server.Port)
		log.Info("STARTUP", "🚀 Localhost Events backend is ready to accept requests!")
		log.Info("STARTUP", "📊 Health check available at: http://localhost"+cfg.Server.Port+"/health")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "Server failed to start: "+err.Error())
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("SHUTDOWN", "Server forced to shutdown: "+err.Error())
	}

	log.Info("SHUTDOWN", "✅ Shutdown completed successfully")
}

func setupRouter(store storage.Store, purchaseHandler *handlers.PurchaseHandler, storefrontHandler *handlers.StorefrontHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(log))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if err := store.HealthCheck(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"service":   "localhost-events",
			"version":   "1.0.0",
		})
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", purchaseHandler.CreateCheckout)

		purchases := v1.Group("/purchases")
		{
			purchases.POST("/verify", purchaseHandler.VerifyPurchase)
		}

		// Trusted internal surface; upstream gateway verifies the source.
		v1.POST("/settlements", purchaseHandler.SettleDirect)

		events := v1.Group("/events")
		{
			events.GET("", storefrontHandler.ListEvents)
			events.GET("/:id", storefrontHandler.GetEvent)
		}

		tickets := v1.Group("/tickets")
		{
			tickets.GET("", storefrontHandler.ListTickets)
			tickets.GET("/:id", storefrontHandler.GetTicket)
		}
	}

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}
