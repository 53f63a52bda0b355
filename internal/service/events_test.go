package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/tienda/internal/metrics"
	"github.com/Skotchmaster/tienda/internal/mykafka"
)

// stalledPublisher blocks every delivery until release is closed.
type stalledPublisher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu        sync.Mutex
	delivered []string
	err       error
}

func newStalledPublisher() *stalledPublisher {
	return &stalledPublisher{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *stalledPublisher) PublishEvent(_ context.Context, _, _ string, event any) error {
	s.once.Do(func() { close(s.started) })
	<-s.release

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, event.(Event).Type)
	return nil
}

func (s *stalledPublisher) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.delivered...)
}

func TestStalledBrokerDoesNotDelayLogin(t *testing.T) {
	env := newTestEnv(t)
	stalled := newStalledPublisher()
	async := NewAsyncPublisher(stalled, env.svc.Metrics, 16)
	env.svc.Events = async

	start := time.Now()
	registerAna(t, env)
	data, err := env.svc.Login(context.Background(), LoginInput{Username: "ana", Password: "Secr3t!"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, data.Authenticated)
	assert.Less(t, elapsed, time.Second)

	close(stalled.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, async.Close(ctx))
	assert.Equal(t, []string{"user_registered", "user_logged_in"}, stalled.types())
}

func TestAsyncPublisherRejectsWhenFull(t *testing.T) {
	stalled := newStalledPublisher()
	async := NewAsyncPublisher(stalled, nil, 1)
	ctx := context.Background()

	require.NoError(t, async.PublishEvent(ctx, mykafka.TopicUserEvents, "1", Event{Type: "first"}))
	<-stalled.started
	require.NoError(t, async.PublishEvent(ctx, mykafka.TopicUserEvents, "1", Event{Type: "second"}))
	assert.ErrorIs(t, async.PublishEvent(ctx, mykafka.TopicUserEvents, "1", Event{Type: "third"}), ErrQueueFull)

	close(stalled.release)
	require.NoError(t, async.Close(ctx))
	assert.Equal(t, []string{"first", "second"}, stalled.types())
	assert.ErrorIs(t, async.PublishEvent(ctx, mykafka.TopicUserEvents, "1", Event{Type: "late"}), ErrPublisherClosed)
}

func TestAsyncPublisherCountsDeliveryFailures(t *testing.T) {
	m := metrics.New()
	stalled := newStalledPublisher()
	stalled.err = errors.New("broker down")
	close(stalled.release)
	async := NewAsyncPublisher(stalled, m, 4)

	require.NoError(t, async.PublishEvent(context.Background(), mykafka.TopicProductEvents, "9", Event{Type: "product_created"}))
	require.NoError(t, async.Close(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventPublishErrs.WithLabelValues(mykafka.TopicProductEvents)))
}

func TestAsyncPublisherCloseHonoursDeadline(t *testing.T) {
	stalled := newStalledPublisher()
	async := NewAsyncPublisher(stalled, nil, 1)
	require.NoError(t, async.PublishEvent(context.Background(), mykafka.TopicUserEvents, "1", Event{Type: "stuck"}))
	<-stalled.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, async.Close(ctx), context.DeadlineExceeded)

	close(stalled.release)
	require.NoError(t, async.Close(context.Background()))
}
