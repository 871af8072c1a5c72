package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lifelog/apiserver/config"
	"github.com/lifelog/apiserver/internal/logger"
	"github.com/segmentio/kafka-go"
)

const headerMessageID = "message_id"

// Fetch errors back off exponentially between these bounds.
var (
	kafkaFetchBackoff    = 500 * time.Millisecond
	kafkaFetchBackoffMax = 30 * time.Second
)

// kafkaReader is the part of *kafka.Reader the consume loop needs.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaClient writes to one topic per channel and consumes through a
// consumer group.
type KafkaClient struct {
	brokers []string
	groupID string

	mu      sync.Mutex
	writers map[string]*kafka.Writer

	newReader func(topic string) kafkaReader
}

func NewKafkaClient(cfg config.KafkaConfig) (*KafkaClient, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka group id is required")
	}

	k := &KafkaClient{
		brokers: cfg.Brokers,
		groupID: cfg.GroupID,
		writers: make(map[string]*kafka.Writer),
	}
	k.newReader = func(topic string) kafkaReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        k.brokers,
			GroupID:        k.groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
		})
	}
	return k, nil
}

// Publish keys messages by the user_id attribute so one user's events stay
// ordered within a partition.
func (k *KafkaClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("kafka channel is required")
	}

	messageID := uuid.NewString()
	headers := []kafka.Header{{Key: headerMessageID, Value: []byte(messageID)}}
	for key, value := range attrs {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}

	msg := kafka.Message{
		Key:     []byte(orderingKey(attrs)),
		Value:   data,
		Headers: headers,
	}
	if err := k.writer(channel).WriteMessages(ctx, msg); err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe blocks until ctx is done. Messages whose handler fails are left
// uncommitted.
func (k *KafkaClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("kafka channel is required")
	}

	reader := k.newReader(channel)
	defer reader.Close()
	return consumeKafka(ctx, reader, handler)
}

func (k *KafkaClient) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var firstErr error
	for topic, writer := range k.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(k.writers, topic)
	}
	return firstErr
}

func (k *KafkaClient) writer(topic string) *kafka.Writer {
	k.mu.Lock()
	defer k.mu.Unlock()

	if writer, ok := k.writers[topic]; ok {
		return writer
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(k.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	k.writers[topic] = writer
	return writer
}

func consumeKafka(ctx context.Context, reader kafkaReader, handler Handler) error {
	backoff := kafkaFetchBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("kafka.fetch_failed", "err", err, "retry_in", backoff.String())
			if err := sleepContext(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, kafkaFetchBackoffMax)
			continue
		}
		backoff = kafkaFetchBackoff

		msg := kafkaToMessage(record)
		if err := handler(ctx, msg); err != nil {
			logger.Warn("kafka.handler_failed", "topic", record.Topic, "offset", record.Offset, "err", err)
			continue
		}
		if err := reader.CommitMessages(ctx, record); err != nil {
			logger.Warn("kafka.commit_failed", "topic", record.Topic, "offset", record.Offset, "err", err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func kafkaToMessage(record kafka.Message) Message {
	msg := Message{Data: record.Value}
	if len(record.Headers) == 0 {
		return msg
	}
	msg.Attributes = make(map[string]string, len(record.Headers))
	for _, header := range record.Headers {
		if header.Key == headerMessageID {
			msg.ID = string(header.Value)
			continue
		}
		msg.Attributes[header.Key] = string(header.Value)
	}
	return msg
}
