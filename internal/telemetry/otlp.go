package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// buildOTLPMetricExporter exports over OTLP/HTTP. endpoint is host:port,
// optionally prefixed with http:// for a plaintext collector.
func buildOTLPMetricExporter(ctx context.Context, endpoint string) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{}
	if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint = rest
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	endpoint = strings.TrimPrefix(endpoint, "https://")
	opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
	return otlpmetrichttp.New(ctx, opts...)
}
