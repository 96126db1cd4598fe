package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLogSink_HandlesAreDistinct(t *testing.T) {
	s := NewLogSink(zap.NewNop())
	ctx := context.Background()

	h1 := s.Notify(ctx, LevelInfo, "first")
	h2 := s.Notify(ctx, LevelError, "second")
	if h1 == h2 {
		t.Fatalf("handles must be distinct: %d == %d", h1, h2)
	}
	// Updates on a known handle must not panic or error.
	s.Update(ctx, h1, LevelSuccess, "done")
}

func TestRedisSink_PublishesEvents(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, Channel)
	t.Cleanup(func() { sub.Close() })
	if _, err := sub.Receive(ctx); err != nil { // subscription confirmation
		t.Fatalf("subscribe: %v", err)
	}

	s := NewRedisSink(rdb, zap.NewNop())
	h := s.Notify(ctx, LevelInfo, "transaction submitted")
	s.Update(ctx, h, LevelSuccess, "transaction confirmed")

	msgCh := sub.Channel()
	var events []Event
	for len(events) < 2 {
		select {
		case msg := <-msgCh:
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events", len(events))
		}
	}

	if events[0].Update || events[0].Message != "transaction submitted" {
		t.Errorf("first event: %+v", events[0])
	}
	if !events[1].Update || events[1].Handle != events[0].Handle {
		t.Errorf("update must reuse the handle: %+v", events[1])
	}
	if events[1].Level != LevelSuccess {
		t.Errorf("update level: %+v", events[1])
	}
}

func TestRedisSink_PublishFailureIsSwallowed(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}) // nothing listens
	s := NewRedisSink(rdb, zap.NewNop())

	// Must not panic or block; failure to notify is non-fatal.
	h := s.Notify(context.Background(), LevelInfo, "hello")
	s.Update(context.Background(), h, LevelError, "bye")
}

func TestMulti_FansOutWithStableHandles(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, Channel)
	t.Cleanup(func() { sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m := NewMulti(NewLogSink(zap.NewNop()), NewRedisSink(rdb, zap.NewNop()))
	h := m.Notify(ctx, LevelInfo, "submitting")
	m.Update(ctx, h, LevelError, "failed")

	msgCh := sub.Channel()
	var events []Event
	for len(events) < 2 {
		select {
		case msg := <-msgCh:
			var ev Event
			json.Unmarshal([]byte(msg.Payload), &ev) //nolint:errcheck
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events", len(events))
		}
	}
	if events[0].Handle != events[1].Handle {
		t.Errorf("redis-side handle must be stable across update: %+v vs %+v", events[0], events[1])
	}
}
