package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
)

// Sink delivers an event over one channel.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
	Channel() string
}

// Registry maps channel names to sinks.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewRegistry creates a Registry holding sinks.
func NewRegistry(sinks ...Sink) *Registry {
	r := &Registry{sinks: make(map[string]Sink)}
	for _, s := range sinks {
		r.Register(s)
	}
	return r
}

// Register adds a sink, replacing any with the same channel.
func (r *Registry) Register(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[s.Channel()] = s
}

// Get returns InvalidChannelError if no sink is registered for channel.
func (r *Registry) Get(channel string) (Sink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[channel]
	if !ok {
		return nil, &domain.InvalidChannelError{Channel: channel}
	}
	return s, nil
}

// Channels lists registered channel names in order.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sinks))
	for c := range r.sinks {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (LogSink) Channel() string { return "log" }

func (s LogSink) Notify(ctx context.Context, ev Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		slog.String("kind", string(ev.Kind)),
		slog.String("task_id", ev.TaskID),
		slog.String("parcel_id", ev.ParcelID),
		slog.String("subject", ev.Subject()),
		slog.String("details", ev.Details),
	)
	return nil
}

// NoneSink drops every event.
type NoneSink struct{}

func (NoneSink) Channel() string { return "none" }

func (NoneSink) Notify(context.Context, Event) error { return nil }
