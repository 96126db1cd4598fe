// Package notify carries user-facing outcome notifications out of the
// executor. Delivery is best-effort: a sink failure never fails the action
// it reports on.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Handle identifies one notification so later Update calls can revise it in
// place (submitting → pending → confirmed/failed is one toast, not four).
type Handle uint64

// Sink receives notifications. Implementations must tolerate concurrent
// calls and must not block on delivery failures.
type Sink interface {
	Notify(ctx context.Context, level Level, message string) Handle
	Update(ctx context.Context, h Handle, level Level, message string)
}

// ── Zap sink ─────────────────────────────────────────────────────────────────

// LogSink renders notifications into the service log. Always available;
// used standalone when Redis is not configured.
type LogSink struct {
	log  *zap.Logger
	next atomic.Uint64
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Notify(_ context.Context, level Level, message string) Handle {
	h := Handle(s.next.Add(1))
	s.emit(h, level, message)
	return h
}

func (s *LogSink) Update(_ context.Context, h Handle, level Level, message string) {
	s.emit(h, level, message)
}

func (s *LogSink) emit(h Handle, level Level, message string) {
	fields := []zap.Field{zap.Uint64("notification", uint64(h)), zap.String("message", message)}
	switch level {
	case LevelError:
		s.log.Error("notification", fields...)
	default:
		s.log.Info("notification", fields...)
	}
}

// ── Redis sink ────────────────────────────────────────────────────────────────

// Channel is the pub/sub channel external UIs subscribe to.
const Channel = "sweeper:notifications"

// Event is the published wire shape.
type Event struct {
	Handle  uint64 `json:"handle"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Update  bool   `json:"update"`
	At      int64  `json:"at"`
}

// RedisSink publishes every notification to a Redis channel so a detached
// UI can render toasts. Publish errors are logged and swallowed.
type RedisSink struct {
	rdb  *redis.Client
	log  *zap.Logger
	next atomic.Uint64
}

func NewRedisSink(rdb *redis.Client, log *zap.Logger) *RedisSink {
	return &RedisSink{rdb: rdb, log: log}
}

func (s *RedisSink) Notify(ctx context.Context, level Level, message string) Handle {
	h := Handle(s.next.Add(1))
	s.publish(ctx, Event{Handle: uint64(h), Level: level, Message: message, At: time.Now().Unix()})
	return h
}

func (s *RedisSink) Update(ctx context.Context, h Handle, level Level, message string) {
	s.publish(ctx, Event{Handle: uint64(h), Level: level, Message: message, Update: true, At: time.Now().Unix()})
}

func (s *RedisSink) publish(ctx context.Context, ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("notify: marshal event", zap.Error(err))
		return
	}
	if err := s.rdb.Publish(ctx, Channel, string(raw)).Err(); err != nil {
		s.log.Warn("notify: publish failed", zap.Error(err))
	}
}

// ── Fan-out ──────────────────────────────────────────────────────────────────

// Multi forwards to several sinks, keeping one handle space so updates
// reach every sink under the same identity.
type Multi struct {
	sinks []Sink
	next  atomic.Uint64

	mu      sync.Mutex
	mapping map[Handle][]Handle // multi handle → per-sink handles
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, mapping: make(map[Handle][]Handle)}
}

func (m *Multi) Notify(ctx context.Context, level Level, message string) Handle {
	h := Handle(m.next.Add(1))
	inner := make([]Handle, len(m.sinks))
	for i, s := range m.sinks {
		inner[i] = s.Notify(ctx, level, message)
	}
	m.mu.Lock()
	m.mapping[h] = inner
	m.mu.Unlock()
	return h
}

func (m *Multi) Update(ctx context.Context, h Handle, level Level, message string) {
	m.mu.Lock()
	inner := m.mapping[h]
	m.mu.Unlock()
	for i, s := range m.sinks {
		if i < len(inner) {
			s.Update(ctx, inner[i], level, message)
		}
	}
}
