package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	// DefaultMaxRetries bounds redelivery of a failing message: one original
	// delivery plus this many retries, then the dead-letter queue.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is waited before a failed message is requeued, so a
	// broken handler is not hammered in a tight redelivery loop.
	DefaultRetryBackoff = time.Second
)

// HandlerFunc processes one decoded message. A nil return acknowledges the
// message. A non-nil return (or a panic) triggers the retry policy. Handlers
// may be invoked concurrently by scaled-out consumer replicas, and may see the
// same message more than once; they must be idempotent.
type HandlerFunc[T any] func(ctx context.Context, msg T) error

// Validator is implemented by messages that carry required fields. A Validate
// failure is treated as a decode failure: structurally invalid messages are
// dead-lettered immediately, because redelivery cannot fix malformed payload.
type Validator interface {
	Validate() error
}

// ConsumerConfig is the small record that fully describes one consumer role.
type ConsumerConfig struct {
	// Queue is the durable work queue to consume from. Its dead-letter queue
	// is declared alongside it.
	Queue string

	// Exchange and RoutingKey optionally bind the queue to a topic exchange.
	// RoutingKey may use * and # wildcards. Both empty means a plain work
	// queue.
	Exchange   string
	RoutingKey string

	// MaxRetries and RetryBackoff override the policy defaults when positive.
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c ConsumerConfig) maxRetries() int64 {
	if c.MaxRetries > 0 {
		return int64(c.MaxRetries)
	}
	return DefaultMaxRetries
}

func (c ConsumerConfig) backoff() time.Duration {
	if c.RetryBackoff > 0 {
		return c.RetryBackoff
	}
	return DefaultRetryBackoff
}

// Consumer subscribes to one queue, decodes each delivery into T and runs the
// injected handler under the acknowledgment discipline described on Start.
type Consumer[T any] struct {
	transport *Transport
	cfg       ConsumerConfig
	handler   HandlerFunc[T]
	logger    *slog.Logger
}

func NewConsumer[T any](t *Transport, cfg ConsumerConfig, handler HandlerFunc[T]) *Consumer[T] {
	return &Consumer[T]{
		transport: t,
		cfg:       cfg,
		handler:   handler,
		logger:    slog.Default().With("queue", cfg.Queue),
	}
}

// Start declares the topology and consumes until ctx is cancelled. It blocks;
// run it in its own goroutine. On cancellation the broker stops delivering,
// the in-flight handler finishes, and the channel is closed. Messages that
// were delivered but not yet acked are redelivered later.
//
// Deliveries are processed one at a time, deliberately: ordering within a
// queue is preserved and a retry backoff delays the messages behind the
// failing one. Parallelism comes from running more consumer replicas, each
// with its own channel, not from fanning out inside one consumer.
//
// Acks are explicit and sent only after the handler returns nil. A process
// crash before the ack therefore causes redelivery: at-least-once, never
// exactly-once.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ch, err := c.transport.OpenChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareQueues(ch, c.cfg.Queue); err != nil {
		return err
	}
	if c.cfg.Exchange != "" && c.cfg.RoutingKey != "" {
		if err := declareBinding(ch, c.cfg.Queue, c.cfg.Exchange, c.cfg.RoutingKey); err != nil {
			return err
		}
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("messaging: consume %q: %w", c.cfg.Queue, err)
	}

	c.logger.Info("consumer started", "exchange", c.cfg.Exchange, "routing_key", c.cfg.RoutingKey)

	for d := range deliveries {
		c.process(ctx, d)
	}

	if err := ctx.Err(); err != nil {
		c.logger.Info("consumer draining after shutdown signal")
		return nil
	}
	return fmt.Errorf("messaging: delivery stream for %q closed unexpectedly", c.cfg.Queue)
}

// process applies the per-message state machine:
//
//	decode failure            -> dead-letter, no retry
//	handler ok                -> ack
//	handler failed, count < N -> wait backoff, requeue
//	handler failed, count >= N -> dead-letter
func (c *Consumer[T]) process(ctx context.Context, d amqp.Delivery) {
	ctx = extractTraceHeaders(ctx, d.Headers)

	var msg T
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.ErrorContext(ctx, "malformed payload, dead-lettering", "error", err)
		c.nack(ctx, d, false)
		return
	}
	if v, ok := any(msg).(Validator); ok {
		if err := v.Validate(); err != nil {
			c.logger.ErrorContext(ctx, "invalid payload, dead-lettering", "error", err)
			c.nack(ctx, d, false)
			return
		}
	}

	if err := c.invoke(ctx, msg); err != nil {
		count := deliveryCount(d.Headers)
		if count < c.cfg.maxRetries() {
			c.logger.WarnContext(ctx, "handler failed, requeueing",
				"error", err, "attempt", count+1)
			c.wait(ctx)
			c.nack(ctx, d, true)
			return
		}
		c.logger.ErrorContext(ctx, "handler failed, retries exhausted, dead-lettering",
			"error", err, "dlq", DeadLetterQueue(c.cfg.Queue))
		c.nack(ctx, d, false)
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.ErrorContext(ctx, "ack failed, message will be redelivered", "error", err)
	}
}

// nack rejects the delivery and logs a failed rejection. The broker treats a
// lost nack like a lost ack: the message comes back on the next delivery.
func (c *Consumer[T]) nack(ctx context.Context, d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		c.logger.ErrorContext(ctx, "nack failed, message will be redelivered",
			"error", err, "requeue", requeue)
	}
}

// invoke runs the handler, converting a panic into an ordinary failure so the
// retry policy applies either way.
func (c *Consumer[T]) invoke(ctx context.Context, msg T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("messaging: handler panic: %v", r)
		}
	}()
	return c.handler(ctx, msg)
}

// wait holds the consumer until the backoff elapses or shutdown begins.
// Later deliveries on the queue wait behind it; see Start.
func (c *Consumer[T]) wait(ctx context.Context) {
	t := time.NewTimer(c.cfg.backoff())
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// deliveryCount reads the broker-maintained redelivery counter. Quorum queues
// set x-delivery-count starting from the first redelivery; a fresh message has
// no header and counts as zero.
func deliveryCount(headers amqp.Table) int64 {
	switch v := headers["x-delivery-count"].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

// extractTraceHeaders restores the publisher's trace context from AMQP
// headers, if present.
func extractTraceHeaders(ctx context.Context, headers amqp.Table) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	for k, v := range headers {
		if s, ok := v.(string); ok {
			carrier[k] = s
		}
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
