package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWriter struct {
	msgs []kafka.Message
	err  error
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func (s *stubWriter) Close() error { return nil }

func TestKafkaPublisher_KeysByAggregate(t *testing.T) {
	w := &stubWriter{}
	p := &KafkaPublisher{writer: w}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	ev := New(OrderCreated, "order-1", at, map[string]string{"status": "pending"})
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "order-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, OrderCreated, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, "order-1", decoded.AggregateID)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &stubWriter{err: errors.New("broker down")}}
	err := p.Publish(context.Background(), New(OrderCreated, "o", time.Now(), nil))
	assert.ErrorContains(t, err, "broker down")
}

func TestHub_FanOut(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(4)
	defer cancelB()

	ev := New(OrderStatusChanged, "o-1", time.Now(), nil)
	require.NoError(t, h.Publish(context.Background(), ev))
	assert.Equal(t, ev.ID, (<-a).ID)
	assert.Equal(t, ev.ID, (<-b).ID)

	cancelA()
	_, open := <-a
	assert.False(t, open)

	require.NoError(t, h.Close())
	_, open = <-b
	assert.False(t, open)
}

func TestHub_FullSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe(1)
	defer cancel()
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Publish(context.Background(), New(OrderCreated, "o", time.Now(), nil)))
	}
}

func TestNewKafkaWriter_DoesNotWaitForFullBatches(t *testing.T) {
	w := newKafkaWriter("orders", "localhost:9092")
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, "orders", w.Topic)
	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)
	assert.Positive(t, w.BatchTimeout)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
	_, keyed := w.Balancer.(*kafka.Hash)
	assert.True(t, keyed, "events of one order must share a partition")
}
