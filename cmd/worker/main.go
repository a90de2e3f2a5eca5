package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cardora-service/config"
	"cardora-service/internal/broker"
	"cardora-service/internal/notify"
	"cardora-service/internal/provider"
	"cardora-service/internal/redisclient"
	"cardora-service/internal/service"
	"cardora-service/internal/store"
	"cardora-service/internal/util"
	"cardora-service/internal/worker"

	"go.uber.org/zap"
)

type runner interface {
	Start(ctx context.Context) error
	Stop() error
}

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

	logger.Info("Starting cardora worker")

	tp, err := util.InitTracer(util.ServiceName+"-worker", cfg.Observ.JaegerEndpoint)
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

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	paymentProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments)
	defer paymentProducer.Close()
	notificationProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer notificationProducer.Close()

	eventPublisher := broker.NewEventPublisher(paymentProducer, notificationProducer)

	slugs := service.NewSlugAllocator(db, cfg.Business.SlugMaxAttempts)
	ingestor := service.NewPaymentIngestor(
		db,
		db,
		db,
		slugs,
		provider.NewStripeProvider(cfg.Provider),
		eventPublisher,
		service.NewNotificationDispatcher(eventPublisher),
		redisClient,
		cfg.Provider.Timeout,
		cfg.Business.InviteBaseURL,
	)

	deadLetterProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDeadLetter)
	defer deadLetterProducer.Close()

	retryConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments, cfg.Kafka.ConsumerGroup+"-retry", deadLetterProducer)
	notificationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.ConsumerGroup+"-notify", deadLetterProducer)

	workers := []runner{
		worker.NewRetryWorker(retryConsumer, ingestor, cfg.Business.MaterializationMaxAttempts, cfg.Business.MaterializationRetryDelay),
		worker.NewNotificationWorker(notificationConsumer, notify.NewMailer(cfg.Mail, logger)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w runner) {
			defer wg.Done()
			if err := w.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("Worker stopped", zap.Error(err))
			}
		}(w)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down workers...")
	cancel()
	wg.Wait()

	for _, w := range workers {
		if err := w.Stop(); err != nil {
			logger.Error("Error closing consumer", zap.Error(err))
		}
	}

	logger.Info("Worker exited")
}
