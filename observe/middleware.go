package observe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// ExecuteFunc is the signature of a guarded call that Middleware wraps.
type ExecuteFunc func(ctx context.Context, op OperationMeta) (any, error)

// Outcome labels how a guarded call ended.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeRejected Outcome = "rejected"
	OutcomeCanceled Outcome = "canceled"
	OutcomeError    Outcome = "error"
)

// OutcomeFunc labels the error a guarded call returned.
type OutcomeFunc func(err error) Outcome

// DefaultOutcome labels nil as ok, context.Canceled as canceled, and any
// other error as error. It knows nothing about rejections.
func DefaultOutcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}

// Middleware records a span, the call metrics, and one log entry for every
// guarded call. Results and errors pass through unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
	outcome OutcomeFunc
}

// NewMiddleware creates a Middleware labelling outcomes with DefaultOutcome.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
		outcome: DefaultOutcome,
	}
}

// WithOutcome returns a copy of m that labels outcomes with fn.
func (m *Middleware) WithOutcome(fn OutcomeFunc) *Middleware {
	cp := *m
	if fn != nil {
		cp.outcome = fn
	}
	return &cp
}

// Wrap returns fn instrumented with tracing, metrics, and logging.
//
// Completed calls log at debug, rejected and canceled calls at info, and
// failed calls at error.
func (m *Middleware) Wrap(fn ExecuteFunc) ExecuteFunc {
	return func(ctx context.Context, op OperationMeta) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, op)

		start := time.Now()
		result, err := fn(ctx, op)
		elapsed := time.Since(start)

		outcome := m.outcome(err)
		span.SetAttributes(attribute.String("guard.outcome", string(outcome)))
		m.tracer.EndSpan(span, err)
		m.metrics.RecordCall(ctx, op, elapsed, err)

		fields := []Field{
			{Key: "outcome", Value: string(outcome)},
			{Key: "duration_ms", Value: float64(elapsed) / float64(time.Millisecond)},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
		}

		log := m.logger.WithOperation(op)
		switch outcome {
		case OutcomeOK:
			log.Debug(ctx, "guarded call completed", fields...)
		case OutcomeRejected:
			log.Info(ctx, "guarded call rejected", fields...)
		case OutcomeCanceled:
			log.Info(ctx, "guarded call canceled", fields...)
		default:
			log.Error(ctx, "guarded call failed", fields...)
		}

		return result, err
	}
}

func (m *Middleware) Tracer() Tracer   { return m.tracer }
func (m *Middleware) Metrics() Metrics { return m.metrics }
func (m *Middleware) Logger() Logger   { return m.logger }

// MiddlewareFromObserver builds a Middleware from the observer's tracer,
// meter, and logger.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// NopMiddleware returns a Middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(NewNoopTracer(), NopMetrics(), NopLogger())
}
