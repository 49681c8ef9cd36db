// Package telemetry wraps request executions in OpenTelemetry spans.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracerName = "github.com/sadopc/reqdeck/internal/telemetry"

	methodKey      = attribute.Key("http.method")
	urlKey         = attribute.Key("http.url")
	hostKey        = attribute.Key("http.host")
	statusCodeKey  = attribute.Key("http.status_code")
	requestIDKey   = attribute.Key("reqdeck.request.id")
	requestNameKey = attribute.Key("reqdeck.request.name")
	executionIDKey = attribute.Key("reqdeck.execution.id")
	durationKey    = attribute.Key("reqdeck.response.duration_ms")
	sizeKey        = attribute.Key("reqdeck.response.size")
	phaseKey       = attribute.Key("reqdeck.trace.phase")
	phaseDurKey    = attribute.Key("reqdeck.trace.phase_duration_us")
)

// phaseEvent names the span event recorded for each timing phase.
const phaseEvent = "reqdeck.trace.phase"

type Instrumenter interface {
	Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan)
	Shutdown(ctx context.Context) error
}

// RequestStart describes an execution about to run.
type RequestStart struct {
	ExecutionID string
	RequestID   int64
	Name        string
	Method      string
	URL         string
}

// RequestResult describes how an execution finished.
type RequestResult struct {
	Err        error
	StatusCode int
	Duration   time.Duration
	Size       int64
	// Phases break Duration down, in the order they happened.
	Phases []Phase
}

// Phase is one timed step of a call, such as "dns" or "ttfb".
type Phase struct {
	Name     string
	Duration time.Duration
}

type RequestSpan interface {
	End(result RequestResult)
}

type providerOptions struct {
	exporter       sdktrace.SpanExporter
	spanProcessors []sdktrace.SpanProcessor
}

type Option func(*providerOptions)

func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(opts *providerOptions) {
		if proc != nil {
			opts.spanProcessors = append(opts.spanProcessors, proc)
		}
	}
}

func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(opts *providerOptions) {
		if exp != nil {
			opts.exporter = exp
		}
	}
}

type manager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	shutdown sync.Once
}

// New builds an Instrumenter. Without an endpoint, exporter or span processor
// it returns Noop().
func New(cfg Config, opts ...Option) (Instrumenter, error) {
	builder := providerOptions{}
	for _, opt := range opts {
		opt(&builder)
	}

	if !cfg.Enabled() && builder.exporter == nil && len(builder.spanProcessors) == 0 {
		return Noop(), nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(buildResourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	exporter := builder.exporter
	if exporter == nil && cfg.Enabled() {
		exporter, err = newExporter(cfg)
		if err != nil {
			return nil, err
		}
	}

	var tpOpts []sdktrace.TracerProviderOption
	tpOpts = append(tpOpts, sdktrace.WithResource(res))
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	for _, proc := range builder.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(proc))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	return &manager{tracer: tp.Tracer(tracerName), provider: tp}, nil
}

func (m *manager) Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan) {
	ctx, span := m.tracer.Start(
		ctx,
		spanNameFor(info),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(buildSpanAttributes(info)...),
	)
	return ctx, &requestSpan{span: span}
}

func (m *manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	var shutdownErr error
	m.shutdown.Do(func() {
		shutdownErr = m.provider.Shutdown(ctx)
	})
	return shutdownErr
}

type requestSpan struct {
	span trace.Span
}

// End sets the span status: error on transport failure or a 4xx/5xx status,
// ok otherwise.
func (rs *requestSpan) End(result RequestResult) {
	if rs == nil || rs.span == nil {
		return
	}

	if result.StatusCode > 0 {
		rs.span.SetAttributes(statusCodeKey.Int(result.StatusCode))
	}
	if result.Duration > 0 {
		rs.span.SetAttributes(durationKey.Int64(result.Duration.Milliseconds()))
	}
	rs.span.SetAttributes(sizeKey.Int64(result.Size))
	for _, phase := range result.Phases {
		rs.span.AddEvent(phaseEvent, trace.WithAttributes(
			phaseKey.String(phase.Name),
			phaseDurKey.Int64(phase.Duration.Microseconds()),
		))
	}

	switch {
	case result.Err != nil:
		rs.span.RecordError(result.Err)
		rs.span.SetStatus(codes.Error, result.Err.Error())
	case result.StatusCode >= 400:
		rs.span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", result.StatusCode))
	default:
		rs.span.SetStatus(codes.Ok, "OK")
	}
	rs.span.End()
}

func Noop() Instrumenter {
	return noopInstrumenter{}
}

type noopInstrumenter struct{}

type noopSpan struct{}

func (noopInstrumenter) Start(ctx context.Context, _ RequestStart) (context.Context, RequestSpan) {
	return ctx, noopSpan{}
}

func (noopInstrumenter) Shutdown(context.Context) error { return nil }

func (noopSpan) End(RequestResult) {}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("telemetry endpoint is required")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	client := otlptracegrpc.NewClient(clientOpts...)
	return otlptrace.New(ctx, client)
}

func buildResourceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.serviceName()),
	}
	if strings.TrimSpace(cfg.Version) != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return attrs
}

func buildSpanAttributes(info RequestStart) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		requestIDKey.Int64(info.RequestID),
	}
	if info.ExecutionID != "" {
		attrs = append(attrs, executionIDKey.String(info.ExecutionID))
	}
	if info.Method != "" {
		attrs = append(attrs, methodKey.String(info.Method))
	}
	if info.URL != "" {
		attrs = append(attrs, urlKey.String(info.URL))
		if u, err := url.Parse(info.URL); err == nil && u.Host != "" {
			attrs = append(attrs, hostKey.String(u.Host))
		}
	}
	if name := strings.TrimSpace(info.Name); name != "" {
		attrs = append(attrs, requestNameKey.String(name))
	}
	return attrs
}

func spanNameFor(info RequestStart) string {
	if name := strings.TrimSpace(info.Name); name != "" {
		return name
	}
	if info.Method != "" {
		if u, err := url.Parse(info.URL); err == nil && u.Host != "" {
			return fmt.Sprintf("%s %s", info.Method, u.Host)
		}
		return info.Method
	}
	return "http.request"
}
