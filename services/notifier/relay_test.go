package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/kafka"
	"github.com/petrovskifilip/agri-management-system/internal/notify"
)

// ── mocks ────────────────────────────────────────────────────────────────────

type publishedMsg struct {
	key   string
	kind  string
	value []byte
}

type fakeProducer struct {
	msgs []publishedMsg
	err  error
}

func (p *fakeProducer) Publish(_ context.Context, key, kind string, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, publishedMsg{key, kind, value})
	return nil
}
func (p *fakeProducer) Close() error { return nil }

type fakeSink struct {
	failures int
	calls    int
	got      []notify.Event
}

func (s *fakeSink) Channel() string { return "webhook" }

func (s *fakeSink) Notify(_ context.Context, ev notify.Event) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("503 from hook")
	}
	s.got = append(s.got, ev)
	return nil
}

type fakeRateLimiter struct {
	allow bool
	err   error
}

func (r *fakeRateLimiter) Allow(context.Context, string) (bool, error) { return r.allow, r.err }

type fakeConsumer struct{ msgs []kafka.Message }

func (c *fakeConsumer) Subscribe(ctx context.Context, h kafka.HandlerFunc) error {
	for _, m := range c.msgs {
		if err := h(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
func (c *fakeConsumer) Close() error { return nil }

var (
	_ kafka.Producer = (*fakeProducer)(nil)
	_ kafka.Consumer = (*fakeConsumer)(nil)
	_ notify.Sink    = (*fakeSink)(nil)
	_ RateLimiter    = (*fakeRateLimiter)(nil)
)

// ── helpers ───────────────────────────────────────────────────────────────────

func eventMessage(t *testing.T) kafka.Message {
	t.Helper()
	irr := &domain.Irrigation{ID: "irr-1", ParcelID: "parcel-1", Status: domain.IrrigationCompleted}
	ev := notify.ForIrrigation(notify.IrrigationCompleted, irr, "North field", "done",
		time.Date(2025, 6, 1, 6, 30, 0, 0, time.UTC))
	value, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("irr-1"), Kind: string(ev.Kind), Value: value}
}

func newTestRelay(sink notify.Sink, dlq kafka.Producer, opts ...Option) *Relay {
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetries(3, time.Millisecond),
	}, opts...)
	return NewRelay(&fakeConsumer{}, sink, dlq, opts...)
}

// ── tests ─────────────────────────────────────────────────────────────────────

func TestHandle_Delivers(t *testing.T) {
	sink := &fakeSink{}
	dlq := &fakeProducer{}
	r := newTestRelay(sink, dlq)

	require.NoError(t, r.handle(context.Background(), eventMessage(t)))
	require.Len(t, sink.got, 1)
	assert.Equal(t, "irr-1", sink.got[0].TaskID)
	assert.Equal(t, "North field", sink.got[0].ParcelName)
	assert.Empty(t, dlq.msgs)
}

func TestHandle_RetriesTransientFailures(t *testing.T) {
	sink := &fakeSink{failures: 2}
	dlq := &fakeProducer{}
	r := newTestRelay(sink, dlq)

	require.NoError(t, r.handle(context.Background(), eventMessage(t)))
	assert.Equal(t, 3, sink.calls)
	assert.Len(t, sink.got, 1)
	assert.Empty(t, dlq.msgs)
}

func TestHandle_ExhaustedDeliveryGoesToDLQ(t *testing.T) {
	sink := &fakeSink{failures: 10}
	dlq := &fakeProducer{}
	r := newTestRelay(sink, dlq)
	msg := eventMessage(t)

	require.NoError(t, r.handle(context.Background(), msg))
	assert.Equal(t, 3, sink.calls)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "irr-1", dlq.msgs[0].key)
	assert.Equal(t, "irrigation.completed", dlq.msgs[0].kind)
	assert.Equal(t, msg.Value, dlq.msgs[0].value)
}

func TestHandle_MalformedGoesToDLQ(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", "{not json"},
		{"missing kind", `{"task_id":"irr-1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{}
			dlq := &fakeProducer{}
			r := newTestRelay(sink, dlq)

			require.NoError(t, r.handle(context.Background(), kafka.Message{Value: []byte(tt.value)}))
			assert.Zero(t, sink.calls)
			require.Len(t, dlq.msgs, 1)
			assert.Equal(t, "unknown", dlq.msgs[0].kind)
		})
	}
}

func TestHandle_DLQFailureKeepsOffset(t *testing.T) {
	r := newTestRelay(&fakeSink{}, &fakeProducer{err: errors.New("broker down")})
	err := r.handle(context.Background(), kafka.Message{Value: []byte("garbage")})
	assert.ErrorContains(t, err, "broker down")
}

func TestHandle_RateLimit(t *testing.T) {
	t.Run("over limit is dead-lettered", func(t *testing.T) {
		sink := &fakeSink{}
		dlq := &fakeProducer{}
		r := newTestRelay(sink, dlq, WithRateLimiter(&fakeRateLimiter{allow: false}))

		require.NoError(t, r.handle(context.Background(), eventMessage(t)))
		assert.Zero(t, sink.calls)
		assert.Len(t, dlq.msgs, 1)
	})

	t.Run("limiter outage still delivers", func(t *testing.T) {
		sink := &fakeSink{}
		dlq := &fakeProducer{}
		r := newTestRelay(sink, dlq, WithRateLimiter(&fakeRateLimiter{err: errors.New("redis down")}))

		require.NoError(t, r.handle(context.Background(), eventMessage(t)))
		assert.Len(t, sink.got, 1)
		assert.Empty(t, dlq.msgs)
	})
}

func TestRun_ProcessesEveryMessage(t *testing.T) {
	sink := &fakeSink{}
	consumer := &fakeConsumer{msgs: []kafka.Message{eventMessage(t), eventMessage(t)}}
	r := NewRelay(consumer, sink, &fakeProducer{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	require.NoError(t, r.Run(context.Background()))
	assert.Len(t, sink.got, 2)
}
