// Package mq is a small broker-agnostic publish/subscribe layer over
// RabbitMQ, Google Cloud Pub/Sub and Kafka.
package mq

import (
	"context"
	"fmt"

	"github.com/lifelog/apiserver/config"
)

// defaultConsumerSuffix names the queue or subscription a subscriber reads
// from when the config leaves it empty.
const defaultConsumerSuffix = "-tail"

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// New connects to the configured broker. It returns a nil Backend when
// events are disabled.
func New(ctx context.Context, cfg config.EventsConfig) (Backend, error) {
	switch cfg.Backend {
	case "", config.BackendNone:
		return nil, nil
	case config.BackendRabbitMQ:
		return NewRabbitMQClient(cfg.RabbitMQ)
	case config.BackendPubSub:
		return NewPubSubClient(ctx, cfg.PubSub)
	case config.BackendKafka:
		return NewKafkaClient(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
