package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardora-service/config"
	"cardora-service/internal/api"
	"cardora-service/internal/broker"
	"cardora-service/internal/provider"
	"cardora-service/internal/redisclient"
	"cardora-service/internal/service"
	"cardora-service/internal/store"
	"cardora-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := util.InitLogger(cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger.Info("Starting cardora API server")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	paymentProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments)
	defer paymentProducer.Close()
	notificationProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer notificationProducer.Close()
	logger.Info("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(paymentProducer, notificationProducer)
	paymentProvider := provider.NewStripeProvider(cfg.Provider)

	slugs := service.NewSlugAllocator(db, cfg.Business.SlugMaxAttempts)
	notifier := service.NewNotificationDispatcher(eventPublisher)

	checkoutService := service.NewCheckoutService(
		db,
		db,
		paymentProvider,
		eventPublisher,
		redisClient,
		redisClient,
		cfg.Provider.Timeout,
		cfg.Business.CheckoutIdempotencyTTL,
	)
	ingestor := service.NewPaymentIngestor(
		db,
		db,
		db,
		slugs,
		paymentProvider,
		eventPublisher,
		notifier,
		redisClient,
		cfg.Provider.Timeout,
		cfg.Business.InviteBaseURL,
	)
	inviteService := service.NewInviteService(db, slugs, cfg.Business.InviteBaseURL)
	rsvpService := service.NewRSVPService(
		db,
		db,
		eventPublisher,
		notifier,
		redisClient,
		cfg.Business.RSVPRateLimit,
	)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(
		checkoutService,
		ingestor,
		inviteService,
		rsvpService,
		[]byte(cfg.Auth.JWTSecret),
		map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
