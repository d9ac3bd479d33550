package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type delivery struct {
		stream string
		event  Event
	}
	got := make(chan delivery, 1)
	sub := NewRedisSubscriber(rdb, zap.NewNop())
	require.NoError(t, sub.Subscribe(ctx, func(stream string, e Event) {
		got <- delivery{stream, e}
	}, StreamDetections))

	pub := NewRedisPublisher(rdb, zap.NewNop())
	require.NoError(t, pub.Publish(ctx, StreamDetections, Event{
		Type:    EventPredatorDetected,
		Payload: map[string]any{"class": "snake"},
	}))

	select {
	case d := <-got:
		assert.Equal(t, StreamDetections, d.stream)
		assert.Equal(t, EventPredatorDetected, d.event.Type)
		assert.Equal(t, "snake", d.event.Payload["class"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}
