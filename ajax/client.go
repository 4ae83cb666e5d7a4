package ajax

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/retryajax/logger"
	"github.com/gaborage/retryajax/options"
	"github.com/gaborage/retryajax/retry"
	"github.com/gaborage/retryajax/transport"
)

const tracerName = "retryajax/ajax"

// Diagnostic describes a call on the facade that cannot be honoured
// across attempts.
type Diagnostic struct {
	Method  string
	Message string
}

// DiagnosticFunc receives diagnostics in addition to the warning log.
type DiagnosticFunc func(Diagnostic)

// Func issues a logical request. Client.Ajax and the functions returned by
// Client.Make share this signature.
type Func func(ctx context.Context, args ...any) (*Request, error)

// Client issues logical requests through a Transport
type Client struct {
	transport  transport.Transport
	logger     logger.Logger
	defaults   retry.Config
	tracer     trace.Tracer
	diagnostic DiagnosticFunc
}

// Builder provides a fluent interface for configuring the client
type Builder struct {
	transport      transport.Transport
	logger         logger.Logger
	defaults       retry.Config
	tracerProvider trace.TracerProvider
	diagnostic     DiagnosticFunc
}

// NewBuilder creates a new client builder
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		logger:   log,
		defaults: retry.DefaultConfig(),
	}
}

// WithTransport sets the request primitive. Defaults to a net/http transport.
func (b *Builder) WithTransport(t transport.Transport) *Builder {
	b.transport = t
	return b
}

// WithDefaults sets the resilience policy applied when a call carries no overrides
func (b *Builder) WithDefaults(cfg retry.Config) *Builder {
	b.defaults = cfg
	return b
}

// WithTries is shorthand for setting only the default attempt budget
func (b *Builder) WithTries(tries int) *Builder {
	b.defaults.Tries = tries
	return b
}

// WithDelay is shorthand for setting only the default delay between attempts
func (b *Builder) WithDelay(delay time.Duration) *Builder {
	b.defaults.Delay = delay
	return b
}

// WithTracerProvider overrides the global tracer provider
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithDiagnostics registers a callback for unsupported facade calls
func (b *Builder) WithDiagnostics(fn DiagnosticFunc) *Builder {
	b.diagnostic = fn
	return b
}

// Build creates the client with the configured options
func (b *Builder) Build() *Client {
	log := b.logger
	if log == nil {
		log = logger.Nop()
	}
	t := b.transport
	if t == nil {
		t = transport.NewHTTP(log)
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Client{
		transport:  t,
		logger:     log,
		defaults:   b.defaults,
		tracer:     tp.Tracer(tracerName),
		diagnostic: b.diagnostic,
	}
}

// New creates a client with default options
func New(log logger.Logger) *Client {
	return NewBuilder(log).Build()
}

// Defaults returns the client's resilience defaults.
func (c *Client) Defaults() retry.Config {
	return c.defaults
}

// Ajax issues a logical request. args is a URL string, a Settings value, or a
// URL followed by Settings. Malformed calls and invalid resilience options are
// reported through the returned error and never reach the transport. All
// request failures are reported through the returned *Request.
func (c *Client) Ajax(ctx context.Context, args ...any) (*Request, error) {
	return c.ajax(ctx, c.defaults, args...)
}

// Make returns a Func with defaults pre-bound on top of the client's own.
// Zero fields in defaults inherit; per-call overrides still win.
func (c *Client) Make(defaults retry.Config) Func {
	bound := c.defaults.Merge(&retry.Overrides{
		Tries:       defaults.Tries,
		Delay:       defaults.Delay,
		ShouldRetry: defaults.ShouldRetry,
	})
	return func(ctx context.Context, args ...any) (*Request, error) {
		return c.ajax(ctx, bound, args...)
	}
}

func (c *Client) ajax(ctx context.Context, defaults retry.Config, args ...any) (*Request, error) {
	overrides, settings, err := options.Resolve(args...)
	if err != nil {
		return nil, err
	}
	if settings.URL == "" {
		return nil, retry.NewArgumentError("a URL is required", nil)
	}

	policy := defaults.Merge(overrides)
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	r := newRequest(ctx, c, policy, settings)
	r.start()
	return r, nil
}
