package contentledger

import (
	"context"
	"log/slog"
	"sync"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for production when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// Publish does nothing and returns nil
func (n *NoopEventSink) Publish(ctx context.Context, event Event) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger uses slog.Default.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// Publish logs the event
func (l *LoggingEventSink) Publish(ctx context.Context, event Event) error {
	attrs := []any{
		"kind", string(event.Kind),
		"identity", string(event.Identity),
		"sequence", event.Sequence,
		"index", event.Index,
	}
	switch event.Kind {
	case EventCreateContentKey:
		attrs = append(attrs, "content_key", FormatContentKey(event.ContentKey))
	case EventAccessPolicyChange:
		attrs = append(attrs, "content_key", FormatContentKey(event.ContentKey), "policy", event.Policy.String())
	case EventSomethingStored:
		attrs = append(attrs, "value", event.Value)
	}
	l.logger.InfoContext(ctx, "Ledger event", attrs...)
	return nil
}

// RecordingEventSink keeps every published event in memory
type RecordingEventSink struct {
	mu     sync.Mutex
	events []Event
}

// NewRecordingEventSink creates an empty recording sink
func NewRecordingEventSink() *RecordingEventSink {
	return &RecordingEventSink{}
}

// Publish records the event
func (r *RecordingEventSink) Publish(ctx context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events in publish order
func (r *RecordingEventSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many recorded events carry the same notification as want
func (r *RecordingEventSink) Count(want Event) int {
	n := 0
	for _, e := range r.Events() {
		if e.SameNotification(want) {
			n++
		}
	}
	return n
}

// Reset discards the recorded events
func (r *RecordingEventSink) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// MultiEventSink fans an event out to several sinks. Every sink is called;
// the first error is returned.
type MultiEventSink []EventSink

// Publish forwards the event to every sink
func (m MultiEventSink) Publish(ctx context.Context, event Event) error {
	var first error
	for _, sink := range m {
		if err := sink.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
