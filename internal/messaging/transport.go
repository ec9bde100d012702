// Package messaging is the reliable delivery layer every service is built on.
// It wraps the AMQP client with three pieces:
//
//   - Transport: owns the durable connection and declares topology
//     (quorum queues, dead-letter routing, topic exchanges).
//   - Publisher: publishes persistent JSON messages over the transport's
//     shared confirm-mode channel, waiting for the broker's ack.
//   - Consumer: a generic subscribe/decode/handle loop with bounded retry and
//     dead-letter fallback.
//
// Delivery is at least once. Handlers must tolerate duplicates.
package messaging

import (
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrConfigurationConflict is returned when a queue or exchange already exists
// with different arguments. The broker refuses the declaration; redeclaring
// with identical arguments is always a no-op.
var ErrConfigurationConflict = errors.New("messaging: topology declared with conflicting arguments")

// Transport owns one lazily-dialed broker connection. The shared channel is
// used by publishers; each consumer opens its own lightweight channel from the
// same connection. Every read and write of the two handles happens under the
// corresponding mutex, so concurrent callers neither race on the fields nor
// open duplicates.
//
// The transport does not retry a lost connection itself: the next caller
// re-dials lazily, and a consumer whose channel dies surfaces the error to its
// supervisor, which owns the restart policy.
type Transport struct {
	url string

	connMu sync.Mutex
	conn   *amqp.Connection

	chMu sync.Mutex
	ch   *amqp.Channel
}

func NewTransport(url string) *Transport {
	return &Transport{url: url}
}

func (t *Transport) connection() (*amqp.Connection, error) {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if c := t.conn; c != nil && !c.IsClosed() {
		return c, nil
	}

	conn, err := amqp.Dial(t.url)
	if err != nil {
		return nil, fmt.Errorf("messaging: dial broker: %w", err)
	}
	t.conn = conn
	return conn, nil
}

// Channel returns the shared publisher channel, opening it (and the
// connection) on first use. The channel is put in confirm mode so publishes
// can wait for the broker's acknowledgment.
func (t *Transport) Channel() (*amqp.Channel, error) {
	t.chMu.Lock()
	defer t.chMu.Unlock()

	if ch := t.ch; ch != nil && !ch.IsClosed() {
		return ch, nil
	}

	conn, err := t.connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("messaging: open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("messaging: enable publisher confirms: %w", err)
	}
	t.ch = ch
	return ch, nil
}

// OpenChannel opens a fresh channel for a consumer. Consumers must not share
// the publisher channel: an ack on a closed or shared channel poisons every
// other user of it.
func (t *Transport) OpenChannel() (*amqp.Channel, error) {
	conn, err := t.connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("messaging: open consumer channel: %w", err)
	}
	return ch, nil
}

// EnsureQueue idempotently declares the durable quorum queue `name` together
// with its dead-letter queue `<name>.dlq`. Messages rejected without requeue
// are routed to the DLQ by the broker via the default exchange.
func (t *Transport) EnsureQueue(name string) error {
	ch, err := t.Channel()
	if err != nil {
		return err
	}
	return declareQueues(ch, name)
}

func declareQueues(ch *amqp.Channel, name string) error {
	dlq := DeadLetterQueue(name)

	if _, err := ch.QueueDeclare(dlq, true, false, false, false, amqp.Table{
		"x-queue-type": "quorum",
	}); err != nil {
		return wrapDeclare(dlq, err)
	}

	if _, err := ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-queue-type":              "quorum",
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}); err != nil {
		return wrapDeclare(name, err)
	}
	return nil
}

// EnsureTopicBinding declares the durable topic exchange and binds the queue
// to it. The pattern may use the broker's `*` and `#` wildcards.
func (t *Transport) EnsureTopicBinding(queue, exchange, pattern string) error {
	ch, err := t.Channel()
	if err != nil {
		return err
	}
	return declareBinding(ch, queue, exchange, pattern)
}

func declareBinding(ch *amqp.Channel, queue, exchange, pattern string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return wrapDeclare(exchange, err)
	}
	if err := ch.QueueBind(queue, pattern, exchange, false, nil); err != nil {
		return fmt.Errorf("messaging: bind %q to %q (%s): %w", queue, exchange, pattern, err)
	}
	return nil
}

func (t *Transport) Close() error {
	t.chMu.Lock()
	if t.ch != nil && !t.ch.IsClosed() {
		_ = t.ch.Close()
	}
	t.chMu.Unlock()

	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn != nil && !t.conn.IsClosed() {
		return t.conn.Close()
	}
	return nil
}

// DeadLetterQueue returns the name of the dead-letter queue paired with the
// given work queue.
func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

func wrapDeclare(name string, err error) error {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed {
		return fmt.Errorf("messaging: declare %q: %w: %s", name, ErrConfigurationConflict, amqpErr.Reason)
	}
	return fmt.Errorf("messaging: declare %q: %w", name, err)
}
