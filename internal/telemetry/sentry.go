// Package telemetry wires Sentry tracing and error capture for pipeline
// stages and the HTTP API, and builds the process logger.
package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

const (
	serviceName  = "reviewpulse"
	flushTimeout = 5 * time.Second
)

type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client and returns a flush function.
// Without a DSN it does nothing. A client that fails to start is logged and
// treated the same as no DSN.
func Init(cfg Config, logger *zerolog.Logger) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
		TracesSampler:    sampler(cfg.TracesSampleRate),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("sentry: failed to initialize, continuing without tracing")
		return func() {}, nil
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Float64("sample_rate", cfg.TracesSampleRate).
		Msg("sentry: tracing initialized")
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampler drops health checks, keeps child spans with their parent and
// samples stage runs and API requests at rate.
func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if isHealthCheck(ctx.Span.Name) {
			return 0
		}
		var noParent sentry.SpanID
		if ctx.Span.ParentSpanID != noParent {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

func isHealthCheck(name string) bool {
	return name == "GET /health"
}

// SpanAttributes tag a stage transaction or a per-group child span.
type SpanAttributes struct {
	RunID     string
	Stage     string
	Group     string
	Operation string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	if span == nil {
		return
	}
	if a.RunID != "" {
		span.SetTag("run_id", a.RunID)
	}
	if a.Stage != "" {
		span.SetTag("stage", a.Stage)
	}
	if a.Group != "" {
		span.SetTag("group", a.Group)
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

func (a SpanAttributes) scope(scope *sentry.Scope) {
	if a.RunID != "" {
		scope.SetTag("run_id", a.RunID)
	}
	if a.Stage != "" {
		scope.SetTag("stage", a.Stage)
	}
	if a.Group != "" {
		scope.SetTag("group", a.Group)
	}
}

type Span struct {
	inner *sentry.Span
	attrs SpanAttributes
}

func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span failed. Only stage transactions report err; a
// failed group span is reported once by its stage through CaptureError.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	s.inner.SetData("error", err.Error())
	if s.inner.IsTransaction() {
		CaptureError(s.inner.Context(), err, s.attrs)
	}
}

// StartSpan opens a transaction for a stage run, or a child span when ctx
// already carries one (per-group work inside a run).
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)

	return span.Context(), &Span{inner: span, attrs: attrs}
}

// CaptureError reports a per-unit failure (a batch, a group) with its run,
// stage and group tags.
func CaptureError(ctx context.Context, err error, attrs SpanAttributes) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		attrs.scope(scope)
		hub.CaptureException(err)
	})
}
