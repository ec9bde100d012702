package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcmexdev/ecommerce-choreography/internal/events"
	"github.com/jcmexdev/ecommerce-choreography/internal/messaging"
	"github.com/jcmexdev/ecommerce-choreography/internal/payment-service/app"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/config"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/telemetry"
)

func main() {
	telemetry.InitLogger("payment-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, "payment-service")
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	var cfg config.PaymentService
	if err := config.Load(&cfg); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	transport := messaging.NewTransport(cfg.Broker.URL())
	defer transport.Close()

	processor := app.NewProcessor(messaging.NewPublisher(transport))

	consumer := messaging.NewConsumer(transport, messaging.ConsumerConfig{
		Queue:        events.QueueProcessPayment,
		Exchange:     events.ExchangeOrder,
		RoutingKey:   events.KeyOrderCreated,
		MaxRetries:   cfg.Broker.MaxRetries,
		RetryBackoff: cfg.Broker.RetryBackoff,
	}, processor.HandleOrderCreated)

	slog.Info("payment service running")
	if err := consumer.Start(ctx); err != nil {
		slog.Error("payment consumer failed", "error", err)
		os.Exit(1)
	}
}
