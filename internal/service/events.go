package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Skotchmaster/tienda/internal/logging"
	"github.com/Skotchmaster/tienda/internal/metrics"
)

// EventPublisher delivers domain events. mykafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

type Event struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// publish is best effort: a failed delivery is logged and counted but never
// fails the operation that produced the event.
func publish(ctx context.Context, p EventPublisher, m *metrics.Metrics, topic, key string, ev Event) {
	if p == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := p.PublishEvent(ctx, topic, key, ev); err != nil {
		m.PublishFailed(topic)
		logging.FromContext(ctx).Warn("event_publish_failed",
			"topic", topic,
			"event", ev.Type,
			"error", err,
		)
	}
}

var (
	ErrPublisherClosed = errors.New("event publisher is closed")
	ErrQueueFull       = errors.New("event queue is full")
)

type queuedEvent struct {
	ctx        context.Context
	topic, key string
	event      any
}

// AsyncPublisher hands events to one background goroutine through a bounded
// queue, so callers never wait on the broker. When the queue is full the
// event is rejected and the caller logs it like any other delivery failure.
type AsyncPublisher struct {
	next    EventPublisher
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan queuedEvent
	done   chan struct{}
}

func NewAsyncPublisher(next EventPublisher, m *metrics.Metrics, size int) *AsyncPublisher {
	if size <= 0 {
		size = 256
	}
	a := &AsyncPublisher{
		next:    next,
		metrics: m,
		queue:   make(chan queuedEvent, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncPublisher) PublishEvent(ctx context.Context, topic, key string, event any) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrPublisherClosed
	}

	select {
	case a.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), topic: topic, key: key, event: event}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *AsyncPublisher) run() {
	defer close(a.done)
	for q := range a.queue {
		if err := a.next.PublishEvent(q.ctx, q.topic, q.key, q.event); err != nil {
			a.metrics.PublishFailed(q.topic)
			evType := ""
			if ev, ok := q.event.(Event); ok {
				evType = ev.Type
			}
			logging.FromContext(q.ctx).Warn("event_publish_failed",
				"topic", q.topic,
				"event", evType,
				"error", err,
			)
		}
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (a *AsyncPublisher) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain events: %w", ctx.Err())
	}
}
