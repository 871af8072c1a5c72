package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lifelog/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQClient broadcasts each channel through a fanout exchange of the
// same name. Subscribers read from a queue named channel+suffix bound to
// that exchange, so every distinct suffix receives every event.
type RabbitMQClient struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	queueDurable    bool
	queueAutoDelete bool
	queueSuffix     string

	mu        sync.Mutex
	exchanges map[string]bool
}

func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	suffix := cfg.QueueSuffix
	if suffix == "" {
		suffix = defaultConsumerSuffix
	}

	return &RabbitMQClient{
		conn:            conn,
		channel:         ch,
		queueDurable:    cfg.QueueDurable,
		queueAutoDelete: cfg.QueueAutoDelete,
		queueSuffix:     suffix,
		exchanges:       make(map[string]bool),
	}, nil
}

func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}
	if err := r.declareExchange(channel); err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	err := r.channel.PublishWithContext(ctx, channel, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Type:         attrs[AttrType],
		Timestamp:    time.Now(),
		Headers:      attributesToHeaders(attrs),
		Body:         data,
	})
	if err != nil {
		return "", fmt.Errorf("publish to exchange %s: %w", channel, err)
	}
	return messageID, nil
}

// Subscribe blocks until ctx is done. A handler error requeues the delivery.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}
	if err := r.declareExchange(channel); err != nil {
		return err
	}

	queue, err := r.channel.QueueDeclare(r.queueName(channel), r.queueDurable, r.queueAutoDelete, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := r.channel.QueueBind(queue.Name, "", channel, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue.Name, err)
	}

	consumerTag := "lifelog-" + uuid.NewString()
	deliveries, err := r.channel.Consume(queue.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handler(ctx, deliveryToMessage(delivery)); err != nil {
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) declareExchange(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exchanges[name] {
		return nil
	}
	if err := r.channel.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	r.exchanges[name] = true
	return nil
}

func (r *RabbitMQClient) queueName(channel string) string {
	return channel + r.queueSuffix
}

func attributesToHeaders(attrs map[string]string) amqp.Table {
	headers := make(amqp.Table, len(attrs))
	for key, value := range attrs {
		headers[key] = value
	}
	return headers
}

// deliveryToMessage falls back to the AMQP type property when the type
// header is missing.
func deliveryToMessage(delivery amqp.Delivery) Message {
	msg := Message{
		ID:         delivery.MessageId,
		Data:       delivery.Body,
		Attributes: headersToAttributes(delivery.Headers),
	}
	if delivery.Type != "" {
		if msg.Attributes == nil {
			msg.Attributes = make(map[string]string, 1)
		}
		if _, ok := msg.Attributes[AttrType]; !ok {
			msg.Attributes[AttrType] = delivery.Type
		}
	}
	return msg
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
