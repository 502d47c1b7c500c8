// Package observability provides distributed tracing for the configurator.
// Logging lives in pkg/logger and metrics in pkg/metrics; this package only
// owns the OpenTelemetry tracer lifecycle and the HTTP tracing middleware.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/matchforge/configurator/pkg/errors"
)

const tracerName = "matchforge-configurator"

var (
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	initOnce sync.Once
)

// Config controls tracer construction.
type Config struct {
	// ServiceName names the service in exported span resources.
	ServiceName string
	// ServiceVersion is the build version attached to span resources.
	ServiceVersion string
	// Environment tags spans with the deployment environment.
	Environment string
	// SamplingRate is the trace sampling ratio. Zero disables sampling,
	// one samples everything.
	SamplingRate float64
}

// Init builds the tracer provider, registers it globally, and installs the
// W3C trace-context propagators. Subsequent calls are no-ops.
func Init(cfg Config) error {
	var err error
	initOnce.Do(func() {
		err = initTracing(cfg)
	})
	return err
}

func initTracing(cfg Config) error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "creating trace resource")
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "creating trace exporter")
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer = provider.Tracer(tracerName)
	return nil
}

// StartSpan opens a span on the configurator tracer. Safe to call before
// Init; spans are then recorded against the global (no-op) provider.
func StartSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if tracer == nil {
		return otel.Tracer(tracerName).Start(ctx, operation)
	}
	return tracer.Start(ctx, operation)
}

// Middleware traces each HTTP request, propagating any inbound trace
// context and injecting the active context into the response headers.
func Middleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := StartSpan(ctx, fmt.Sprintf("%s %s", r.Method, r.URL.Path))
			defer span.End()

			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.String()),
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.String("service.name", serviceName),
			)

			otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(w.Header()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	if err := provider.Shutdown(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "shutting down tracer provider")
	}
	return nil
}
