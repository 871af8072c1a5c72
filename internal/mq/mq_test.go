package mq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/lifelog/apiserver/config"
	"github.com/lifelog/apiserver/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
	err     error
}

func (b *recordingBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.channel, b.data, b.attrs = channel, data, attrs
	return "msg-1", b.err
}

func (b *recordingBackend) Subscribe(context.Context, string, Handler) error { return nil }

func (b *recordingBackend) Close() error { return nil }

func TestNewDisabledAndUnknown(t *testing.T) {
	backend, err := New(context.Background(), config.EventsConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Nil(t, backend)

	_, err = New(context.Background(), config.EventsConfig{Backend: "nats"})
	require.EqualError(t, err, `unknown mq backend "nats"`)
}

func TestNewClientsValidateConfig(t *testing.T) {
	_, err := NewRabbitMQClient(config.RabbitMQConfig{})
	require.EqualError(t, err, "rabbitmq url is required")

	_, err = NewPubSubClient(context.Background(), config.PubSubConfig{})
	require.EqualError(t, err, "pubsub project id is required")

	_, err = NewKafkaClient(config.KafkaConfig{GroupID: "g"})
	require.EqualError(t, err, "kafka brokers are required")
}

func TestActivityPublisherRoundTrip(t *testing.T) {
	backend := &recordingBackend{}
	publisher := NewActivityPublisher(backend, "activity-events")
	event := types.ActivityEvent{
		Type:       types.EventActivityCreated,
		ActivityID: 9,
		UserID:     3,
		OccurredAt: time.Date(2026, time.October, 16, 8, 0, 0, 0, time.UTC),
		Activity:   &types.Activity{ID: 9, UserID: 3, Title: "Run", ActivityDate: "2026-10-16"},
	}

	require.NoError(t, publisher.Publish(context.Background(), event))
	assert.Equal(t, "activity-events", backend.channel)
	assert.Equal(t, map[string]string{AttrType: "activity.created", AttrUserID: "3"}, backend.attrs)

	decoded, err := DecodeActivityEvent(Message{ID: "msg-1", Data: backend.data})
	require.NoError(t, err)
	assert.Equal(t, event.Type, decoded.Type)
	assert.Equal(t, 9, decoded.ActivityID)
	assert.True(t, event.OccurredAt.Equal(decoded.OccurredAt))
	require.NotNil(t, decoded.Activity)
	assert.Equal(t, "Run", decoded.Activity.Title)
}

func TestActivityPublisherWrapsBackendError(t *testing.T) {
	boom := errors.New("broker down")
	publisher := NewActivityPublisher(&recordingBackend{err: boom}, "activity-events")

	err := publisher.Publish(context.Background(), types.ActivityEvent{Type: types.EventActivityDeleted})
	require.ErrorIs(t, err, boom)
}

func TestDecodeActivityEventRejectsGarbage(t *testing.T) {
	_, err := DecodeActivityEvent(Message{ID: "x", Data: []byte("not json")})
	require.Error(t, err)
}

func TestHeadersToAttributes(t *testing.T) {
	attrs := headersToAttributes(amqp.Table{"type": "activity.updated", "raw": []byte("b"), "n": int32(4)})
	assert.Equal(t, map[string]string{"type": "activity.updated", "raw": "b", "n": "4"}, attrs)
	assert.Nil(t, headersToAttributes(nil))
}

func TestDeliveryToMessage(t *testing.T) {
	msg := deliveryToMessage(amqp.Delivery{
		MessageId: "m1",
		Type:      "activity.deleted",
		Headers:   amqp.Table{AttrUserID: "3"},
		Body:      []byte(`{}`),
	})
	assert.Equal(t, Message{
		ID:         "m1",
		Data:       []byte(`{}`),
		Attributes: map[string]string{AttrUserID: "3", AttrType: "activity.deleted"},
	}, msg)

	msg = deliveryToMessage(amqp.Delivery{Type: "ignored", Headers: amqp.Table{AttrType: "activity.created"}})
	assert.Equal(t, "activity.created", msg.Attributes[AttrType])

	assert.Nil(t, deliveryToMessage(amqp.Delivery{MessageId: "m2"}).Attributes)
}

func TestAttributesToHeaders(t *testing.T) {
	headers := attributesToHeaders(map[string]string{AttrType: "activity.created", AttrUserID: "3"})
	assert.Equal(t, amqp.Table{AttrType: "activity.created", AttrUserID: "3"}, headers)
	assert.Equal(t, map[string]string{AttrType: "activity.created", AttrUserID: "3"}, headersToAttributes(headers))
}

func TestRabbitMQQueueName(t *testing.T) {
	client := &RabbitMQClient{queueSuffix: defaultConsumerSuffix}
	assert.Equal(t, "activity-events-tail", client.queueName("activity-events"))
}

func TestPubSubToMessage(t *testing.T) {
	msg := pubsubToMessage(&pubsub.Message{ID: "p1", Data: []byte("x"), Attributes: map[string]string{AttrType: "activity.updated"}})
	assert.Equal(t, Message{ID: "p1", Data: []byte("x"), Attributes: map[string]string{AttrType: "activity.updated"}}, msg)
}

func TestOrderingKeyIsUserID(t *testing.T) {
	assert.Equal(t, "3", orderingKey(map[string]string{AttrType: "activity.created", AttrUserID: "3"}))
	assert.Empty(t, orderingKey(nil))
}

type fakeReader struct {
	mu        sync.Mutex
	fetchErrs []error
	fetches   int
	records   []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		if len(r.fetchErrs) > 1 {
			r.fetchErrs = r.fetchErrs[1:]
		}
		if err != nil {
			return kafka.Message{}, err
		}
		r.fetchErrs = nil
	}
	if len(r.records) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	record := r.records[0]
	r.records = r.records[1:]
	return record, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumeKafkaCommitsOnlyHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		cancel: cancel,
		records: []kafka.Message{
			{Offset: 1, Value: []byte("ok"), Headers: []kafka.Header{{Key: headerMessageID, Value: []byte("m1")}, {Key: AttrType, Value: []byte("activity.created")}}},
			{Offset: 2, Value: []byte("fail")},
			{Offset: 3, Value: []byte("ok")},
		},
	}

	var seen []Message
	err := consumeKafka(ctx, reader, func(_ context.Context, msg Message) error {
		seen = append(seen, msg)
		if string(msg.Data) == "fail" {
			return errors.New("handler failed")
		}
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, seen, 3)
	assert.Equal(t, "m1", seen[0].ID)
	assert.Equal(t, map[string]string{AttrType: "activity.created"}, seen[0].Attributes)
	assert.Equal(t, []int64{1, 3}, reader.committed)
}

func withKafkaBackoff(t *testing.T, base, limit time.Duration) {
	t.Helper()
	prevBase, prevLimit := kafkaFetchBackoff, kafkaFetchBackoffMax
	kafkaFetchBackoff, kafkaFetchBackoffMax = base, limit
	t.Cleanup(func() {
		kafkaFetchBackoff, kafkaFetchBackoffMax = prevBase, prevLimit
	})
}

func TestConsumeKafkaBacksOffOnFetchErrors(t *testing.T) {
	withKafkaBackoff(t, 10*time.Millisecond, 15*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	down := errors.New("broker unavailable")
	reader := &fakeReader{
		cancel:    cancel,
		fetchErrs: []error{down, down, down, nil},
		records:   []kafka.Message{{Offset: 7, Value: []byte("ok")}},
	}

	started := time.Now()
	err := consumeKafka(ctx, reader, func(context.Context, Message) error { return nil })

	require.ErrorIs(t, err, context.Canceled)
	// 10ms, then 15ms twice once the cap is reached.
	assert.GreaterOrEqual(t, time.Since(started), 40*time.Millisecond)
	assert.Equal(t, 5, reader.fetches)
	assert.Equal(t, []int64{7}, reader.committed)
}

func TestConsumeKafkaStopsWhileBackingOff(t *testing.T) {
	withKafkaBackoff(t, time.Hour, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	reader := &fakeReader{cancel: cancel, fetchErrs: []error{errors.New("broker unavailable")}}

	started := time.Now()
	err := consumeKafka(ctx, reader, func(context.Context, Message) error { return nil })

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, 1, reader.fetches)
}

func TestKafkaSubscribeUsesReaderFactory(t *testing.T) {
	client, err := NewKafkaClient(config.KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "g"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var topic string
	client.newReader = func(name string) kafkaReader {
		topic = name
		return &fakeReader{cancel: cancel}
	}

	err = client.Subscribe(ctx, "activity-events", func(context.Context, Message) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "activity-events", topic)
	require.NoError(t, client.Close())
}
