package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcmexdev/ecommerce-choreography/internal/events"
	"github.com/jcmexdev/ecommerce-choreography/internal/inventory-service/app"
	"github.com/jcmexdev/ecommerce-choreography/internal/inventory-service/httpx"
	"github.com/jcmexdev/ecommerce-choreography/internal/inventory-service/store"
	"github.com/jcmexdev/ecommerce-choreography/internal/messaging"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/config"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/telemetry"
)

func main() {
	telemetry.InitLogger("inventory-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, "inventory-service")
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

	var cfg config.InventoryService
	if err := config.Load(&cfg); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	inventoryStore, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open inventory store", "error", err)
		os.Exit(1)
	}
	defer inventoryStore.Close()

	transport := messaging.NewTransport(cfg.Broker.URL())
	defer transport.Close()

	service := app.NewService(inventoryStore)

	// One consumer per saga role. Each owns its channel on the shared
	// connection; the commit/release queues overlap with the payment watcher
	// on purpose, the store's idempotency markers collapse the duplicates.
	startConsumer(ctx, stop, messaging.NewConsumer(transport, consumerConfig(cfg,
		events.QueueInventoryAllocate, events.ExchangeOrder, events.KeyOrderCreated),
		service.HandleOrderCreated))
	startConsumer(ctx, stop, messaging.NewConsumer(transport, consumerConfig(cfg,
		events.QueueInventoryCommit, events.ExchangePayment, events.KeyPaymentSuccess),
		service.HandleCommit))
	startConsumer(ctx, stop, messaging.NewConsumer(transport, consumerConfig(cfg,
		events.QueueInventoryRelease, events.ExchangePayment, events.KeyPaymentFailed),
		service.HandleRelease))
	startConsumer(ctx, stop, messaging.NewConsumer(transport, consumerConfig(cfg,
		events.QueueInventoryPaymentWatch, events.ExchangePayment, events.KeyPaymentAny),
		service.HandlePaymentOutcome))

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: httpx.NewRouter(httpx.NewHandler(inventoryStore)),
	}

	go func() {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(drainCtx)
	}()

	slog.Info("inventory service running", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func consumerConfig(cfg config.InventoryService, queue, exchange, key string) messaging.ConsumerConfig {
	return messaging.ConsumerConfig{
		Queue:        queue,
		Exchange:     exchange,
		RoutingKey:   key,
		MaxRetries:   cfg.Broker.MaxRetries,
		RetryBackoff: cfg.Broker.RetryBackoff,
	}
}

// startConsumer supervises one consumer: a consumer that dies outside of a
// graceful shutdown takes the process down with it, leaving the restart to
// the process supervisor.
func startConsumer[T any](ctx context.Context, stop context.CancelFunc, c *messaging.Consumer[T]) {
	go func() {
		if err := c.Start(ctx); err != nil {
			slog.Error("consumer failed", "error", err)
			stop()
		}
	}()
}
