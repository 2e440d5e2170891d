package notification

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// KindCacheStale indicates a cached companion id contradicted by the ledger.
	KindCacheStale = "cache_stale"
	// KindDiscoveryFallback indicates discovery served ids from the cache.
	KindDiscoveryFallback = "discovery_fallback"
	// KindTransitionAnomaly indicates a replayed transition the state machine forbids.
	KindTransitionAnomaly = "transition_anomaly"
)

// Message describes a reconciliation alert.
type Message struct {
	Kind    string
	Subject string
	Body    string
}

// Notifier delivers alerts to downstream systems. Delivery failures never
// fail the reconciliation that raised them.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes alerts to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.WarnContext(ctx, "reconciliation alert", "kind", message.Kind, "subject", message.Subject, "body", message.Body)
	return nil
}

// Recorder keeps alerts in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Send records the message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

// Messages returns the recorded alerts of the given kind, all when kind is empty.
func (r *Recorder) Messages(kind string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if kind == "" || m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// Notify sends message if n is set and drops delivery errors.
func Notify(ctx context.Context, n Notifier, message Message) {
	if n == nil {
		return
	}
	_ = n.Send(ctx, message)
}
