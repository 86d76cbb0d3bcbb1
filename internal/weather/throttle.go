package weather

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

// ErrThrottled is returned when the call budget for the provider is spent.
var ErrThrottled = errors.New("weather provider call budget exhausted")

// Limiter decides whether one more provider call may be made for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() int
}

// Throttled guards a provider with a Limiter. A denied call surfaces as a
// provider failure, which the gate turns into "proceed".
type Throttled struct {
	next    Provider
	limiter Limiter
}

var _ Provider = (*Throttled)(nil)

func NewThrottled(next Provider, limiter Limiter) *Throttled {
	return &Throttled{next: next, limiter: limiter}
}

func (t *Throttled) Check(ctx context.Context, lat, lon float64) (Decision, error) {
	ok, err := t.limiter.Allow(ctx, providerName)
	if err != nil {
		return Decision{}, &domain.ProviderFailureError{Provider: providerName, Err: err}
	}
	if !ok {
		telemetry.WeatherChecks.WithLabelValues("throttled").Inc()
		return Decision{}, &domain.ProviderFailureError{Provider: providerName, Err: ErrThrottled}
	}
	return t.next.Check(ctx, lat, lon)
}

// LocalLimiter is an in-process token bucket allowing limit calls per window
// per key. Used when no Redis is configured.
type LocalLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

var _ Limiter = (*LocalLimiter)(nil)

func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit < 1 {
		limit = 1
	}
	return &LocalLimiter{limit: limit, window: window, buckets: make(map[string]*rate.Limiter)}
}

func (l *LocalLimiter) Limit() int { return l.limit }

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow(), nil
}
