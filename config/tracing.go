package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/akeren/course-waitlist-api/internal/log"
	"github.com/akeren/course-waitlist-api/pkg/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultOTLPEndpoint = "http://localhost:4318"

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Environment string
	Endpoint    string
	// SampleRatio applies to root spans; children follow their parent.
	SampleRatio float64
}

func NewTracingConfig() *TracingConfig {
	return &TracingConfig{
		Enabled:     utils.IsTracingEnabled(),
		ServiceName: utils.OTelServiceName(),
		Environment: GetAppEnv(),
		Endpoint:    utils.GetEnvTrimmedOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", defaultOTLPEndpoint),
		SampleRatio: utils.GetEnvFloatOrDefault("OTEL_TRACES_SAMPLER_RATIO", 1),
	}
}

// SetupTracing installs the global tracer provider. It returns a nil shutdown when tracing is off.
func SetupTracing(logger *log.Logger) (func(context.Context) error, error) {
	tc := NewTracingConfig()
	if !tc.Enabled {
		return nil, nil
	}

	opts, err := otlpOptions(tc.Endpoint)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("setup tracing exporter: %w", err)
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", tc.ServiceName)}
	if tc.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", tc.Environment))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("setup tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Info("OpenTelemetry tracing enabled", "service", tc.ServiceName, "endpoint", tc.Endpoint, "sample_ratio", tc.SampleRatio)
	return tp.Shutdown, nil
}

// otlpOptions accepts http(s)://host:port[/path] or a bare host:port, which is sent in plaintext.
func otlpOptions(raw string) ([]otlptracehttp.Option, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty OTLP endpoint")
	}

	if !strings.Contains(raw, "://") {
		if strings.ContainsAny(raw, "/?#") {
			return nil, fmt.Errorf("invalid OTLP endpoint %q: a path needs a scheme, e.g. http://host:port/path", raw)
		}
		return []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(raw),
			otlptracehttp.WithURLPath("/v1/traces"),
			otlptracehttp.WithInsecure(),
		}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: missing host", raw)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(u.Host)}
	switch strings.ToLower(u.Scheme) {
	case "http":
		opts = append(opts, otlptracehttp.WithInsecure())
	case "https":
	default:
		return nil, fmt.Errorf("unsupported OTLP endpoint scheme %q; use http or https", u.Scheme)
	}

	urlPath := u.EscapedPath()
	if urlPath == "" || urlPath == "/" {
		urlPath = "/v1/traces"
	}
	return append(opts, otlptracehttp.WithURLPath(urlPath)), nil
}
