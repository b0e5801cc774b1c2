// Package events fans order changes out to in-process subscribers such as
// the admin live feed.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"deliverycart/internal/logging"
	"deliverycart/internal/model"
)

const TopicOrders = "orders"

const (
	KindCreated       = "order_created"
	KindStatusChanged = "order_status_changed"
)

type OrderEvent struct {
	ID    string      `json:"id"`
	Kind  string      `json:"kind"`
	Order model.Order `json:"order"`
	At    time.Time   `json:"at"`
}

// Bus is a non-persistent publish/subscribe channel. Events published
// while nobody is subscribed are dropped.
type Bus struct {
	pubsub *gochannel.GoChannel
}

func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logAdapter{}),
	}
}

func (b *Bus) PublishOrder(kind string, o model.Order) error {
	ev := OrderEvent{ID: watermill.NewUUID(), Kind: kind, Order: o, At: time.Now().UTC()}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := message.NewMessage(ev.ID, data)
	msg.Metadata.Set("kind", kind)
	if err := b.pubsub.Publish(TopicOrders, msg); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

// Subscribe streams decoded order events until ctx is done.
func (b *Bus) Subscribe(ctx context.Context) (<-chan OrderEvent, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicOrders)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan OrderEvent)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev OrderEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable event")
				msg.Ack()
				continue
			}
			select {
			case out <- ev:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// logAdapter routes watermill's internal logging to zerolog.
type logAdapter struct {
	fields watermill.LogFields
}

func (a logAdapter) Error(msg string, err error, fields watermill.LogFields) {
	logging.Error().Err(err).Fields(map[string]any(a.fields.Add(fields))).Msg(msg)
}

func (a logAdapter) Info(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(map[string]any(a.fields.Add(fields))).Msg(msg)
}

func (a logAdapter) Debug(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(map[string]any(a.fields.Add(fields))).Msg(msg)
}

func (a logAdapter) Trace(string, watermill.LogFields) {}

func (a logAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return logAdapter{fields: a.fields.Add(fields)}
}
