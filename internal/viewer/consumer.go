package viewer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/TinoTau/lingua-1-sub000/internal/observability/logging"
)

// MessageReader is the part of kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// NewReader creates a partition reader for topic starting at messages
// published within lookback.
func NewReader(ctx context.Context, brokers []string, topic string, lookback time.Duration) *kafka.Reader {
	// Partition reader without a consumer group, so every viewer sees everything.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	if err := reader.SetOffsetAt(ctx, time.Now().Add(-lookback)); err != nil {
		log := logging.WithComponent("viewer.consumer")
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to seek, reading from the start")
	}
	return reader
}

// Consume reads events from r and publishes them to hub until ctx is done.
// Undecodable messages are skipped.
func Consume(ctx context.Context, r MessageReader, hub *Hub) {
	log := logging.WithComponent("viewer.consumer")
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Kafka read failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		event, err := decodeEvent(msg)
		if err != nil {
			log.Warn().Err(err).Str("topic", msg.Topic).Msg("Skipping undecodable message")
			continue
		}
		log.Debug().
			Str("eventType", event.EventType).
			Str("sessionId", event.SessionID).
			Str("segmentId", event.SegmentID).
			Msg("Event received")
		if err := hub.Publish(ctx, event); err != nil {
			return
		}
	}
}

func decodeEvent(msg kafka.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return Event{}, err
	}
	event.Topic = msg.Topic
	return event, nil
}
