package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopool/internal/config"
	"gopool/internal/gateway"
	"gopool/internal/handlers"
	"gopool/internal/middleware"
	"gopool/internal/repositories/mongodb"
	"gopool/internal/repositories/postgres"
	"gopool/internal/services"
	"gopool/pkg/cache"
	"gopool/pkg/database"
	"gopool/pkg/logger"
	"gopool/pkg/maps"
	"gopool/pkg/payment"
	"gopool/pkg/websocket"
	"gopool/routes"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(cfg.App.LogLevel),
		Format:     "json",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Mongo holds the chat, trip and request aggregates.
	mongo, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer mongo.Close()

	if err := database.NewMigrator(mongo.Database).Up(); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	// Postgres holds identity, friendships, wallets and the ledger.
	pg, err := database.NewPostgres(&database.PostgresConfig{
		URL:            cfg.Postgres.URL,
		MaxConns:       int32(cfg.Postgres.MaxConns),
		MinConns:       int32(cfg.Postgres.MinConns),
		ConnectTimeout: cfg.Postgres.ConnectTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer pg.Close()

	if err := pg.EnsureSchema(context.Background()); err != nil {
		log.WithError(err).Fatal("Failed to ensure Postgres schema")
	}

	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	cacheService := services.NewCacheService(redisCache, log, cfg.App.Name, 10*time.Minute)

	// Repositories
	chatRepo := mongodb.NewChatRepository(mongo.Database, cacheService)
	tripRepo := mongodb.NewTripRepository(mongo.Database, cacheService)
	requestRepo := mongodb.NewRequestRepository(mongo.Database)
	userRepo := postgres.NewUserRepository(pg.Pool)
	friendshipRepo := postgres.NewFriendshipRepository(pg.Pool)
	ledgerRepo := postgres.NewLedgerRepository(pg.Pool)

	// Realtime gateway
	wsHandler := websocket.NewHandler()

	// External providers
	paymentProvider := buildPaymentProvider(cfg, log)
	mapsProvider := buildMapsProvider(cfg, log)

	// Services
	distributor := services.NewDistributorService(chatRepo, wsHandler, log)
	paymentService := services.NewPaymentService(userRepo, ledgerRepo, paymentProvider, log)
	tripService := services.NewTripService(tripRepo, requestRepo, userRepo, distributor, mapsProvider, wsHandler, log)
	requestService := services.NewRequestService(requestRepo, friendshipRepo, userRepo, tripService, paymentService, distributor, wsHandler, log)

	wsHandler.SetRouter(gateway.NewRouter(distributor, log))

	// Staged messages from an earlier crash are re-driven before the
	// server starts taking traffic.
	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 30*time.Second)
	if err := distributor.RecoverPending(recoverCtx); err != nil {
		log.WithError(err).Error("Failed to recover staged messages")
	}
	cancelRecover()

	// Handlers
	chatHandler := handlers.NewChatHandler(distributor)
	tripHandler := handlers.NewTripHandler(tripService)
	requestHandler := handlers.NewRequestHandler(requestService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(log))

	v1 := router.Group("/api/v1")
	{
		routes.SetupChatRoutes(v1, chatHandler, cfg.Security.JWTSecret)
		routes.SetupTripRoutes(v1, tripHandler, cfg.Security.JWTSecret)
		routes.SetupRequestRoutes(v1, requestHandler, cfg.Security.JWTSecret)
		routes.SetupPaymentRoutes(v1, paymentHandler, cfg.Security.JWTSecret)
	}
	routes.SetupWebSocketRoutes(router, wsHandler, cfg.Security.JWTSecret)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": cfg.App.Version,
		})
	})

	// Lifecycle sweeper
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go tripService.RunSweeper(sweepCtx)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.App.Port).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Forced server shutdown")
	}
}

func buildPaymentProvider(cfg *config.Config, log *logger.Logger) payment.PaymentProvider {
	switch cfg.Payment.DefaultProvider {
	case "stripe":
		if cfg.Payment.Stripe.SecretKey != "" {
			return payment.NewStripeProvider(cfg.Payment.Stripe.SecretKey)
		}
	case "razorpay":
		if cfg.Payment.Razorpay.KeyID != "" {
			return payment.NewRazorpayProvider(cfg.Payment.Razorpay.KeyID, cfg.Payment.Razorpay.KeySecret)
		}
	}
	log.Warn("No card payment provider configured; card payments disabled")
	return nil
}

func buildMapsProvider(cfg *config.Config, log *logger.Logger) maps.MapsProvider {
	if cfg.Maps.GoogleMaps.APIKey == "" {
		log.Warn("No maps provider configured; route estimates disabled")
		return nil
	}
	provider, err := maps.NewGoogleMapsProvider(cfg.Maps.GoogleMaps.APIKey)
	if err != nil {
		log.WithError(err).Warn("Failed to initialize maps provider; route estimates disabled")
		return nil
	}
	return provider
}
