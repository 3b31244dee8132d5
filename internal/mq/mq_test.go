package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxscribe/apiserver/config"
)

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakeBackend struct {
	sent       []published
	publishErr error
	inbox      []Message
	acked      int
	nacked     int
}

var _ Backend = (*fakeBackend)(nil)

func (f *fakeBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.sent = append(f.sent, published{channel: channel, data: data, attrs: attrs})
	return "msg-1", nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, _ string, handler Handler) error {
	for _, msg := range f.inbox {
		if err := handler(ctx, msg); err != nil {
			f.nacked++
			continue
		}
		f.acked++
	}
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func TestEmitEncodesEvent(t *testing.T) {
	backend := &fakeBackend{}
	q := New(backend, "voxscribe-events")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := q.Emit(context.Background(), Event{
		Type:       EventAudioOrphaned,
		UserID:     "u1",
		AudioPath:  "u1/1700000000000-memo.mp3",
		Reason:     "transcription failed",
		OccurredAt: at,
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	msg := backend.sent[0]
	assert.Equal(t, "voxscribe-events", msg.channel)
	assert.Equal(t, EventAudioOrphaned, msg.attrs["event_type"])

	var got Event
	require.NoError(t, json.Unmarshal(msg.data, &got))
	assert.Equal(t, "u1/1700000000000-memo.mp3", got.AudioPath)
	assert.True(t, at.Equal(got.OccurredAt))
}

func TestEmitStampsTimeAndWrapsErrors(t *testing.T) {
	backend := &fakeBackend{}
	q := New(backend, "events")
	require.NoError(t, q.Emit(context.Background(), Event{Type: EventUserDeleted, UserID: "u1"}))

	var got Event
	require.NoError(t, json.Unmarshal(backend.sent[0].data, &got))
	assert.False(t, got.OccurredAt.IsZero())

	boom := errors.New("broker down")
	backend.publishErr = boom
	err := q.Emit(context.Background(), Event{Type: EventUserDeleted})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "publish user.deleted")
}

func TestConsumeDecodesAndSkipsGarbage(t *testing.T) {
	body, err := json.Marshal(Event{UserID: "u2", TranscriptionID: "t1"})
	require.NoError(t, err)

	backend := &fakeBackend{inbox: []Message{
		{ID: "1", Data: []byte("not json")},
		{ID: "2", Data: body, Attributes: map[string]string{"event_type": EventTranscriptionCreated}},
	}}
	q := New(backend, "events")

	var got []Event
	require.NoError(t, q.Consume(context.Background(), func(_ context.Context, ev Event) error {
		got = append(got, ev)
		return nil
	}))

	require.Len(t, got, 1)
	assert.Equal(t, EventTranscriptionCreated, got[0].Type)
	assert.Equal(t, "t1", got[0].TranscriptionID)
	assert.Equal(t, 2, backend.acked)
}

func TestConnect(t *testing.T) {
	q, err := Connect(context.Background(), config.MQConfig{Channel: "events"})
	require.NoError(t, err)
	assert.Equal(t, "events", q.Channel())
	require.NoError(t, q.Emit(context.Background(), Event{Type: EventUserDeleted}))
	require.NoError(t, q.Close())

	_, err = Connect(context.Background(), config.MQConfig{Backend: "kafka"})
	require.EqualError(t, err, `unknown mq backend "kafka"`)

	_, err = Connect(context.Background(), config.MQConfig{Backend: "rabbitmq"})
	require.ErrorContains(t, err, "rabbitmq url is required")

	_, err = Connect(context.Background(), config.MQConfig{Backend: "pubsub"})
	require.ErrorContains(t, err, "pubsub project id is required")
}

func TestDiscardSubscribeBlocksUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := discard{}.Subscribe(ctx, "events", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))
	attrs := headersToAttributes(amqp.Table{
		"event_type": "user.deleted",
		"raw":        []byte("bytes"),
		"n":          int32(7),
	})
	assert.Equal(t, map[string]string{"event_type": "user.deleted", "raw": "bytes", "n": "7"}, attrs)
}

func TestSubscriptionName(t *testing.T) {
	assert.Equal(t, "events-sub", subscriptionName("events", "-sub"))
	assert.Equal(t, "events", subscriptionName("events", ""))
}
