package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ErrPublishNotConfirmed is returned when the broker nacks a publish. The
// message was not persisted; the caller decides whether to retry.
var ErrPublishNotConfirmed = errors.New("messaging: broker did not confirm publish")

// Publisher sends typed events onto a named destination, lazily establishing
// and reusing the transport's shared channel. The channel runs in confirm
// mode: Publish waits for the broker's acknowledgment, so a nil return means
// the message is persisted, and a publish failure surfaces to the caller,
// which decides whether the business action is worth retrying.
type Publisher struct {
	transport *Transport
}

func NewPublisher(t *Transport) *Publisher {
	return &Publisher{transport: t}
}

// Publish marshals msg as JSON and sends it.
//
// With an empty exchange, destination is a direct work queue which is declared
// on demand. With a non-empty exchange, destination is a routing key on that
// topic exchange: the message is fired into whatever topology consumers have
// declared, and is dropped by the broker if no binding matches.
func (p *Publisher) Publish(ctx context.Context, msg any, destination, exchange string) error {
	ch, err := p.transport.Channel()
	if err != nil {
		return err
	}

	if exchange == "" {
		if err := p.transport.EnsureQueue(destination); err != nil {
			return err
		}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("messaging: marshal %T: %w", msg, err)
	}

	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, destination, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      injectTraceHeaders(ctx),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("messaging: publish to %q (exchange %q): %w", destination, exchange, err)
	}
	if err := awaitConfirm(ctx, conf); err != nil {
		return fmt.Errorf("messaging: publish to %q (exchange %q): %w", destination, exchange, err)
	}

	slog.InfoContext(ctx, "event published", "destination", destination, "exchange", exchange)
	return nil
}

// confirmation is the slice of amqp.DeferredConfirmation awaitConfirm needs.
type confirmation interface {
	Done() <-chan struct{}
	Acked() bool
}

// awaitConfirm blocks until the broker acks or nacks the publish, or the
// context ends first. A nack means the broker refused to persist the message.
func awaitConfirm(ctx context.Context, conf confirmation) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-conf.Done():
		if !conf.Acked() {
			return ErrPublishNotConfirmed
		}
		return nil
	}
}

// injectTraceHeaders copies the active trace context into AMQP headers so a
// consumer in another process can continue the same trace.
func injectTraceHeaders(ctx context.Context) amqp.Table {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	headers := amqp.Table{}
	for k, v := range carrier {
		headers[k] = v
	}
	return headers
}
