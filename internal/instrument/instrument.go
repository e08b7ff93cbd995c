package instrument

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Instrumenter starts spans around units of work.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
}

// Span is one timed unit of work. End records it.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	TraceID() string
	SpanID() string
}

// Event is a finished span.
type Event struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Source       string         `json:"source"`
	Component    string         `json:"component"`
	Action       string         `json:"action"`
	UserID       string         `json:"user_id,omitempty"`
	DurationMs   float64        `json:"duration_ms"`
	Status       string         `json:"status"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type ctxKey struct{}

type spanKey struct{}

type userKey struct{}

// WithInstrumenter attaches inst to ctx.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, ctxKey{}, inst)
}

// GetInstrumenter returns the instrumenter attached to ctx, or a no-op one.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if inst, ok := ctx.Value(ctxKey{}).(Instrumenter); ok && inst != nil {
		return inst
	}
	return &NoopInstrumenter{}
}

// WithUserID tags spans started under ctx with the acting user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// Tracer records spans into an EventBuffer and logs them at debug level.
type Tracer struct {
	buffer       *EventBuffer
	logger       *zap.Logger
	samplingRate float64
}

func NewTracer(buffer *EventBuffer, logger *zap.Logger, samplingRate float64) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{buffer: buffer, logger: logger, samplingRate: samplingRate}
}

func (t *Tracer) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	parent, _ := ctx.Value(spanKey{}).(*span)
	if parent == nil && t.samplingRate < 1 && rand.Float64() >= t.samplingRate {
		return ctx, &NoopSpan{}
	}

	s := &span{
		tracer: t,
		start:  time.Now(),
		event: Event{
			SpanID:    uuid.NewString(),
			Source:    source,
			Component: component,
			Action:    action,
			Status:    "ok",
		},
	}
	if parent != nil {
		s.event.TraceID = parent.event.TraceID
		s.event.ParentSpanID = parent.event.SpanID
	} else {
		s.event.TraceID = uuid.NewString()
	}
	if userID, ok := ctx.Value(userKey{}).(string); ok {
		s.event.UserID = userID
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

type span struct {
	tracer *Tracer
	start  time.Time

	mu    sync.Mutex
	event Event
	ended bool
}

func (s *span) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.event.CreatedAt = time.Now()
	s.event.DurationMs = float64(s.event.CreatedAt.Sub(s.start).Microseconds()) / 1000
	ev := s.event
	s.mu.Unlock()

	s.tracer.logger.Debug("span",
		zap.String("trace_id", ev.TraceID),
		zap.String("span_id", ev.SpanID),
		zap.String("component", ev.Component),
		zap.String("action", ev.Action),
		zap.String("status", ev.Status),
		zap.Float64("duration_ms", ev.DurationMs),
		zap.Any("metadata", ev.Metadata))
	if s.tracer.buffer != nil {
		s.tracer.buffer.Enqueue(ev)
	}
}

func (s *span) SetStatus(status string) {
	s.mu.Lock()
	s.event.Status = status
	s.mu.Unlock()
}

func (s *span) SetMetadata(key string, value any) {
	s.mu.Lock()
	if s.event.Metadata == nil {
		s.event.Metadata = make(map[string]any)
	}
	s.event.Metadata[key] = value
	s.mu.Unlock()
}

func (s *span) TraceID() string { return s.event.TraceID }
func (s *span) SpanID() string  { return s.event.SpanID }
