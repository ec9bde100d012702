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
	"github.com/jcmexdev/ecommerce-choreography/internal/messaging"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/httpx"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/store"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/config"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/telemetry"
)

func main() {
	telemetry.InitLogger("order-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, "order-service")
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

	var cfg config.OrderService
	if err := config.Load(&cfg); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	orderStore, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open order store", "error", err)
		os.Exit(1)
	}
	defer orderStore.Close()

	transport := messaging.NewTransport(cfg.Broker.URL())
	defer transport.Close()

	service := app.NewService(orderStore, messaging.NewPublisher(transport))

	var readCache cache.Cache
	if cfg.RedisAddr != "" {
		readCache = cache.NewRedisCache(cfg.RedisAddr, "order")
	}

	consumer := messaging.NewConsumer(transport, messaging.ConsumerConfig{
		Queue:        events.QueueOrderUpdates,
		Exchange:     events.ExchangePayment,
		RoutingKey:   events.KeyPaymentAny,
		MaxRetries:   cfg.Broker.MaxRetries,
		RetryBackoff: cfg.Broker.RetryBackoff,
	}, service.HandlePaymentOutcome)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("order updates consumer failed", "error", err)
			stop()
		}
	}()

	handler := httpx.NewHandler(service, readCache)
	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: httpx.NewRouter(handler),
	}

	go func() {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(drainCtx)
	}()

	slog.Info("order service running", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	}
}
