package rbac

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

const tracerName = "github.com/platinummonkey/gatekeeper/pkg/rbac"

// CheckObserver receives the outcome of every resolver call
type CheckObserver interface {
	ObserveCheck(op string, allowed bool, err error, duration time.Duration)
}

type options struct {
	now      func() time.Time
	logger   *observability.Logger
	observer CheckObserver
	tracer   trace.Tracer
}

// Option configures the services and the checker
type Option func(*options)

// WithClock overrides time.Now for timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCheckObserver reports checker decisions to obs
func WithCheckObserver(obs CheckObserver) Option {
	return func(o *options) { o.observer = obs }
}

// WithTracer sets the tracer used for checker spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: observability.NewNopLogger(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) timestamp() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}
