// Package tracing times the phases of a request. A root span is carried in
// the context; phases started under it become children and are reported
// together in one log record when the root finishes.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanKey struct{}

type Span struct {
	name    string
	traceID string
	start   time.Time
	elapsed time.Duration

	mu       sync.Mutex
	attrs    []slog.Attr
	children []*Span
}

// Start begins a span. With a span already in ctx the new span becomes its
// child and inherits its trace ID; traceID is used only for roots.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{name: name, traceID: traceID, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

func (s *Span) End() { s.elapsed = time.Since(s.start) }

func (s *Span) Name() string { return s.name }

func (s *Span) TraceID() string { return s.traceID }

func (s *Span) Duration() time.Duration { return s.elapsed }

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Phases returns the duration of each direct child by name.
func (s *Span) Phases() map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Duration, len(s.children))
	for _, c := range s.children {
		out[c.name] += c.elapsed
	}
	return out
}

// Log writes the span and its children as one debug record, each child as
// a group keyed by its name.
func (s *Span) Log(logger *slog.Logger) {
	args := []any{"trace_id", s.traceID, "duration_us", s.elapsed.Microseconds()}
	for _, a := range s.group() {
		args = append(args, a)
	}
	logger.Debug("trace "+s.name, args...)
}

func (s *Span) group() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, 0, len(s.attrs)+len(s.children))
	for _, a := range s.attrs {
		out = append(out, a)
	}
	for _, c := range s.children {
		inner := append([]any{"duration_us", c.elapsed.Microseconds()}, c.group()...)
		out = append(out, slog.Group(c.name, inner...))
	}
	return out
}
