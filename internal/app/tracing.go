package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// initTracing installs a process-wide TracerProvider, grounded on the
// teacher's internal/observability.InitOTel: a resource tagged with the
// service name plus a parent-based, ratio-sampled TracerProvider. This repo
// carries no OTLP exporter dependency, so sampled spans are recorded but not
// shipped anywhere until a caller installs one via otel.SetTracerProvider
// themselves; wiring otelgin.Middleware below still gets every HTTP request
// a span and W3C trace-context propagation for free.
func initTracing(serviceName string, log *logger.Logger) func(context.Context) error {
	if serviceName == "" {
		serviceName = "orchestratord"
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		log.Warn("otel resource init failed, tracing continues with default resource", "error", err)
		res = resource.Default()
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
