package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-leave/internal/balance"
	"go-leave/internal/bootstrap"
	"go-leave/internal/directory"
	"go-leave/internal/events"
	"go-leave/internal/messaging/kafka"
	"go-leave/internal/messaging/kafka/consumer"
	"go-leave/internal/policy"
	"go-leave/internal/propagation"
	"go-leave/internal/shared/connection"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func RunConsumer() error {
	logger := zap.L().Named("app.consumer")

	gormDB, err := connection.ConnectGORMWithRetry(
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
		5,
	)
	if err != nil {
		return err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	kafkaBroker := os.Getenv("KAFKA_BROKER")
	if kafkaBroker == "" {
		return fmt.Errorf("KAFKA_BROKER is required")
	}

	redisClient, err := connection.ConnectRedisWithRetry(os.Getenv("REDIS_ADDR"), 5)
	if err != nil {
		return err
	}

	policyRepo := policy.NewRepository(gormDB)
	balanceRepo := balance.NewRepository(gormDB)
	outboxRepo := kafka.NewOutboxRepository(sqlDB)
	employees := directory.NewEmployeeDirectory(gormDB)

	termsProvider := policy.NewTermsProvider(policyRepo)
	auditLogger := bootstrap.NewStdoutAuditLogger()
	balanceService := balance.NewService(sqlDB, balanceRepo, termsProvider, outboxRepo, redisClient, auditLogger)
	propagator := propagation.New(balanceRepo, balanceService, employees)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        []string{kafkaBroker},
		Topic:          events.LeavePolicyLifecycleTopic,
		GroupID:        "go-leave-policy-propagation",
		CommitInterval: 0,
		StartOffset:    kafkago.FirstOffset,
	})
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consumer.ConsumePolicyLifecycle(ctx, reader, propagator, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("consumer shutting down")
	cancel()

	return nil
}
