package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event types published by the application.
const (
	EventTranscriptionCreated = "transcription.created"
	EventAudioOrphaned        = "audio.orphaned"
	EventUserDeleted          = "user.deleted"
)

const attrEventType = "event_type"

// Event is the JSON body of every published message.
type Event struct {
	Type            string    `json:"type"`
	UserID          string    `json:"user_id"`
	TranscriptionID string    `json:"transcription_id,omitempty"`
	AudioPath       string    `json:"audio_path,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Publisher emits application events. Services depend on this rather than on MQ.
type Publisher interface {
	Emit(ctx context.Context, ev Event) error
}

var _ Publisher = (*MQ)(nil)

// Emit encodes ev as JSON and publishes it with its type as an attribute.
func (m *MQ) Emit(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := m.Publish(ctx, data, map[string]string{attrEventType: ev.Type}); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Consume subscribes to the bound channel and decodes each message into an
// Event. Undecodable messages are acknowledged and skipped.
func (m *MQ) Consume(ctx context.Context, fn func(ctx context.Context, ev Event) error) error {
	return m.Subscribe(ctx, func(ctx context.Context, msg Message) error {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return nil
		}
		if ev.Type == "" {
			ev.Type = msg.Attributes[attrEventType]
		}
		return fn(ctx, ev)
	})
}
