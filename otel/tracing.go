// Package otel provides OpenTelemetry integration for watcher events.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/namewatch/watch"
)

// TracingHandler translates watcher events into OpenTelemetry spans.
// Each watched name gets one span covering the lifetime of its match
// rule: started when the rule is installed, ended when the last
// watcher leaves or the name loses its owner.
type TracingHandler struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span // name -> active rule span
}

// NewTracingHandler creates a TracingHandler that uses the given
// tracer to create spans from watcher events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer: tracer,
		spans:  make(map[string]trace.Span),
	}
}

// Handle processes a watcher event and creates or ends spans
// accordingly. Use it as a watch.EventEmitter.
func (h *TracingHandler) Handle(e watch.Event) {
	switch e.Kind {
	case watch.EventRuleAdded:
		h.handleRuleAdded(e)
	case watch.EventWatchAdded, watch.EventWatchRemoved:
		h.handleWatchChanged(e)
	case watch.EventRuleRemoved:
		h.handleRuleRemoved(e)
	case watch.EventNameLost:
		h.handleNameLost(e)
	}
}

func (h *TracingHandler) handleRuleAdded(e watch.Event) {
	_, span := h.tracer.Start(context.Background(), "watch:"+e.Name,
		trace.WithAttributes(
			attribute.String("namewatch.name", e.Name),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.spans[e.Name] = span
	h.mu.Unlock()
}

// handleWatchChanged annotates the active span with registration churn
// under the same rule.
func (h *TracingHandler) handleWatchChanged(e watch.Event) {
	h.mu.Lock()
	span, ok := h.spans[e.Name]
	h.mu.Unlock()

	if !ok {
		return
	}
	span.AddEvent(string(e.Kind),
		trace.WithTimestamp(e.Time),
		trace.WithAttributes(attribute.Int("namewatch.callbacks", e.Count)),
	)
}

func (h *TracingHandler) handleRuleRemoved(e watch.Event) {
	span, ok := h.takeSpan(e.Name)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("namewatch.outcome", "unwatched"))
	span.SetStatus(codes.Ok, "")
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) handleNameLost(e watch.Event) {
	span, ok := h.takeSpan(e.Name)
	if !ok {
		return
	}
	span.SetAttributes(
		attribute.String("namewatch.outcome", "name_lost"),
		attribute.String("namewatch.old_owner", e.OldOwner),
		attribute.Int("namewatch.callbacks", e.Count),
	)
	span.SetStatus(codes.Ok, "")
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) takeSpan(name string) (trace.Span, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	span, ok := h.spans[name]
	if ok {
		delete(h.spans, name)
	}
	return span, ok
}

// ActiveSpanContext returns the SpanContext for the active rule span
// of a watched name. Returns an empty SpanContext if none is active.
func (h *TracingHandler) ActiveSpanContext(name string) trace.SpanContext {
	h.mu.Lock()
	span, ok := h.spans[name]
	h.mu.Unlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}
