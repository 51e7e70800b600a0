// Package main 状态回写服务入口（state-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/infrastructure/messaging"
	"storyforge-api/internal/wire"
	"storyforge-api/pkg/logger"
	"storyforge-api/pkg/tracer"
)

// dlqAlertThreshold 死信队列堆积告警阈值
const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "state-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	worker.Consumer.RegisterHandler(messaging.MessageTypeTurnEffects, func(ctx context.Context, msg *messaging.Message) error {
		var effects entity.TurnEffects
		if err := msg.UnmarshalPayload(&effects); err != nil {
			return fmt.Errorf("malformed turn effects payload: %w", err)
		}
		return worker.Updater.Apply(ctx, &effects)
	})

	if err := worker.Consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	go worker.Consumer.MonitorDLQ(ctx, dlqAlertThreshold)

	logger.Info(ctx, "state-worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down state-worker...")
	worker.Consumer.Stop()
	logger.Info(ctx, "state-worker exited")
}
