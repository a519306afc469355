package badger

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("registry-review.cache")

var (
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter

	metricsOnce sync.Once
)

// initMetrics registers the counters with the global meter provider.
// Without a configured provider they are no-ops.
func initMetrics() {
	metricsOnce.Do(func() {
		var err error
		cacheHits, err = meter.Int64Counter(
			"cache_hits_total",
			metric.WithDescription("Total number of cache hits"),
		)
		if err != nil {
			cacheHits = nil
		}
		cacheMisses, err = meter.Int64Counter(
			"cache_misses_total",
			metric.WithDescription("Total number of cache misses"),
		)
		if err != nil {
			cacheMisses = nil
		}
	})
}

func recordLookup(ctx context.Context, namespace string, hit bool) {
	attrs := metric.WithAttributes(attribute.String("namespace", namespace))
	if hit {
		if cacheHits != nil {
			cacheHits.Add(ctx, 1, attrs)
		}
		return
	}
	if cacheMisses != nil {
		cacheMisses.Add(ctx, 1, attrs)
	}
}
