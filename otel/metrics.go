package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/namewatch/watch"
)

// MetricsHandler translates watcher events into OpenTelemetry metrics:
// counters for registrations, firings, and the degenerate signal
// paths, plus an up-down counter tracking active match rules.
type MetricsHandler struct {
	watchesAdded   metric.Int64Counter
	watchesRemoved metric.Int64Counter
	namesLost      metric.Int64Counter
	callbacksFired metric.Int64Counter
	staleSignals   metric.Int64Counter
	decodeFailures metric.Int64Counter
	activeRules    metric.Int64UpDownCounter
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter
// to create instruments for recording watcher metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	watchesAdded, err := meter.Int64Counter("namewatch.watches.added",
		metric.WithDescription("Number of callback registrations"),
	)
	if err != nil {
		return nil, err
	}

	watchesRemoved, err := meter.Int64Counter("namewatch.watches.removed",
		metric.WithDescription("Number of callback unregistrations"),
	)
	if err != nil {
		return nil, err
	}

	namesLost, err := meter.Int64Counter("namewatch.names.lost",
		metric.WithDescription("Number of watched names that lost their owner"),
	)
	if err != nil {
		return nil, err
	}

	callbacksFired, err := meter.Int64Counter("namewatch.callbacks.fired",
		metric.WithDescription("Number of callbacks invoked by firings"),
	)
	if err != nil {
		return nil, err
	}

	staleSignals, err := meter.Int64Counter("namewatch.signals.stale",
		metric.WithDescription("Ownership-loss signals with no registered watchers"),
	)
	if err != nil {
		return nil, err
	}

	decodeFailures, err := meter.Int64Counter("namewatch.signals.decode_failures",
		metric.WithDescription("NameOwnerChanged signals that failed to decode"),
	)
	if err != nil {
		return nil, err
	}

	activeRules, err := meter.Int64UpDownCounter("namewatch.rules.active",
		metric.WithDescription("Match rules with live watchers"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		watchesAdded:   watchesAdded,
		watchesRemoved: watchesRemoved,
		namesLost:      namesLost,
		callbacksFired: callbacksFired,
		staleSignals:   staleSignals,
		decodeFailures: decodeFailures,
		activeRules:    activeRules,
	}, nil
}

// Handle processes a watcher event and records the appropriate
// metrics. Use it as a watch.EventEmitter.
func (h *MetricsHandler) Handle(e watch.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("name", e.Name))

	switch e.Kind {
	case watch.EventWatchAdded:
		h.watchesAdded.Add(ctx, 1, attrs)
	case watch.EventWatchRemoved:
		h.watchesRemoved.Add(ctx, 1, attrs)
	case watch.EventRuleAdded:
		h.activeRules.Add(ctx, 1)
	case watch.EventRuleRemoved:
		h.activeRules.Add(ctx, -1)
	case watch.EventNameLost:
		h.namesLost.Add(ctx, 1, attrs)
		h.callbacksFired.Add(ctx, int64(e.Count), attrs)
		// Firing consumes every watcher under the rule; no
		// rule.removed event follows.
		h.activeRules.Add(ctx, -1)
	case watch.EventSignalStale:
		h.staleSignals.Add(ctx, 1, attrs)
	case watch.EventDecodeFailed:
		h.decodeFailures.Add(ctx, 1)
	}
}
