// Package config loads process configuration from environment variables,
// parsed once at startup.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Broker holds the connection settings shared by every service.
type Broker struct {
	Host     string `env:"RABBITMQ_HOST" envDefault:"localhost"`
	Port     int    `env:"RABBITMQ_PORT" envDefault:"5672"`
	User     string `env:"RABBITMQ_USER" envDefault:"guest"`
	Password string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`

	// MaxRetries and RetryBackoff override the consumer policy defaults when
	// set.
	MaxRetries   int           `env:"CONSUMER_MAX_RETRIES"`
	RetryBackoff time.Duration `env:"CONSUMER_RETRY_BACKOFF"`
}

// URL builds the AMQP connection string.
func (b Broker) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", b.User, b.Password, b.Host, b.Port)
}

// OrderService configures the order service process.
type OrderService struct {
	Broker    Broker
	HTTPPort  string `env:"PORT" envDefault:"8080"`
	DBPath    string `env:"ORDER_DB_PATH" envDefault:"./data/orders.db"`
	RedisAddr string `env:"REDIS_ADDR"`
}

// PaymentService configures the payment service process.
type PaymentService struct {
	Broker Broker
}

// InventoryService configures the inventory service process.
type InventoryService struct {
	Broker   Broker
	HTTPPort string `env:"PORT" envDefault:"8081"`
	DBPath   string `env:"INVENTORY_DB_PATH" envDefault:"./data/inventory.db"`
}

// Load parses environment variables into target.
func Load(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}
