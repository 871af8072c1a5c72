package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lifelog/apiserver/types"
)

// Attribute keys set on every activity event.
const (
	AttrType   = "type"
	AttrUserID = "user_id"
)

// orderingKey keeps the events of one user in order on backends that
// support keyed ordering.
func orderingKey(attrs map[string]string) string {
	return attrs[AttrUserID]
}

// ActivityPublisher announces activity changes on one channel.
type ActivityPublisher struct {
	backend Backend
	channel string
}

func NewActivityPublisher(backend Backend, channel string) *ActivityPublisher {
	return &ActivityPublisher{backend: backend, channel: channel}
}

func (p *ActivityPublisher) Publish(ctx context.Context, event types.ActivityEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode activity event: %w", err)
	}
	attrs := map[string]string{
		AttrType:   event.Type,
		AttrUserID: strconv.Itoa(event.UserID),
	}
	if _, err := p.backend.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// DecodeActivityEvent parses a message produced by ActivityPublisher.
func DecodeActivityEvent(msg Message) (types.ActivityEvent, error) {
	var event types.ActivityEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.ActivityEvent{}, fmt.Errorf("decode activity event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		event.Type = msg.Attributes[AttrType]
	}
	return event, nil
}
