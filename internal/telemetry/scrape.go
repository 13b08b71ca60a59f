package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/codeface/bugcrawl/internal/tracker"
)

const scrapeScopeName = "github.com/codeface/bugcrawl/scrape"

// ScrapeMetrics records worker pool events as OTel metrics. It satisfies
// scrape.Metrics.
type ScrapeMetrics struct {
	fetched metric.Int64Counter
	retried metric.Int64Counter
	dropped metric.Int64Counter
	latency metric.Float64Histogram
}

// NewScrapeMetrics creates the instruments on the global meter provider.
// With telemetry disabled the provider is a no-op.
func NewScrapeMetrics() *ScrapeMetrics {
	return newScrapeMetrics(Meter(scrapeScopeName))
}

func newScrapeMetrics(m metric.Meter) *ScrapeMetrics {
	fetched, _ := m.Int64Counter("bugcrawl.scrape.fetched",
		metric.WithDescription("Issues fetched and cached"),
	)
	retried, _ := m.Int64Counter("bugcrawl.scrape.retried",
		metric.WithDescription("Fetch attempts requeued, by action"),
	)
	dropped, _ := m.Int64Counter("bugcrawl.scrape.dropped",
		metric.WithDescription("Issues abandoned for the run, by reason"),
	)
	latency, _ := m.Float64Histogram("bugcrawl.scrape.fetch.duration",
		metric.WithDescription("Time to fetch one complete issue in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &ScrapeMetrics{fetched: fetched, retried: retried, dropped: dropped, latency: latency}
}

func (m *ScrapeMetrics) Fetched(ctx context.Context, elapsed time.Duration) {
	m.fetched.Add(ctx, 1)
	m.latency.Record(ctx, float64(elapsed.Milliseconds()))
}

func (m *ScrapeMetrics) Retried(ctx context.Context, action tracker.Action) {
	m.retried.Add(ctx, 1, metric.WithAttributes(attribute.String("bugcrawl.action", action.String())))
}

func (m *ScrapeMetrics) Dropped(ctx context.Context, reason string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("bugcrawl.reason", reason)))
}
