package ajax

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/retryajax/internal/tracking"
	"github.com/gaborage/retryajax/options"
	"github.com/gaborage/retryajax/retry"
	"github.com/gaborage/retryajax/transport"
)

const spanName = "ajax.request"

var errRequestAborted = errors.New("request aborted")

func newRequest(ctx context.Context, c *Client, policy retry.Config, settings options.Settings) *Request {
	method := settings.EffectiveMethod()

	ctx, span := c.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(method),
			semconv.URLFull(settings.URL),
			attribute.Int("ajax.tries", policy.Tries),
			attribute.Int64("ajax.delay_ms", policy.Delay.Milliseconds()),
		),
	)

	requestID := transport.EnsureRequestID(ctx)
	ctx = transport.WithRequestID(ctx, requestID)
	ctx, cancel := context.WithCancelCause(ctx)

	return &Request{
		client:   c,
		settings: settings,
		policy:   policy,
		method:   method,
		log: c.logger.WithFields(map[string]any{
			"request_id": requestID,
			"method":     method,
			"url":        settings.URL,
		}),
		ctx:       ctx,
		cancel:    cancel,
		span:      span,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// start issues the first attempt synchronously so that the facade reads
// through to a live attempt as soon as Ajax returns.
func (r *Request) start() {
	first := r.send()
	go r.run(first)
}

// send issues the next physical attempt. It returns nil once the request
// settled; the check and the send happen under mu so an Abort either
// cancels the new attempt or prevents it.
func (r *Request) send() transport.Attempt {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return nil
	}
	n := r.attempts.Add(1)
	a := r.client.transport.Send(r.ctx, &r.settings)
	r.current.Store(&attemptRef{attempt: a})
	r.mu.Unlock()

	r.log.Debug().
		Int("attempt", int(n)).
		Int("tries", r.policy.Tries).
		Msg("Attempt started")
	return a
}

// run drives the retry sequence. Attempts never overlap: the next one is sent
// only after the previous settled and the delay elapsed.
func (r *Request) run(a transport.Attempt) {
	defer r.cancel(nil)

	for a != nil {
		<-a.Done()
		o := a.Outcome()
		o.Attempt = r.Attempts()

		r.mu.Lock()
		if r.settled {
			r.mu.Unlock()
			return
		}
		r.observeAttempt(o)
		r.mu.Unlock()

		if !o.Failure() {
			r.settle(o)
			return
		}
		if r.ctx.Err() != nil {
			r.settle(retry.Aborted(o.Attempt))
			return
		}
		if !r.policy.Eligible(o) {
			r.settle(o)
			return
		}
		if r.isSettled() {
			return
		}

		tracking.RecordRetry(r.ctx, r.method, o.Kind.String())
		r.log.Info().
			Int("attempt", o.Attempt).
			Int("tries", r.policy.Tries).
			Str("kind", o.Kind.String()).
			Dur("delay", r.policy.Delay).
			Msg("Retrying request")

		if err := retry.Wait(r.ctx, r.policy.Delay); err != nil {
			r.settle(retry.Aborted(o.Attempt))
			return
		}
		a = r.send()
	}
}

// settle records the terminal outcome and dispatches callbacks exactly once.
// It reports whether this call settled the request.
func (r *Request) settle(o retry.Outcome) bool {
	subs, ok := r.claim(o)
	if !ok {
		return false
	}
	r.finish(o, subs)
	return true
}

// claim marks the request settled with o and hands over the subscribers
// registered so far. Only the first claim succeeds.
func (r *Request) claim(o retry.Outcome) (subscribers, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return subscribers{}, false
	}
	r.settled = true
	r.outcome = o
	if o.Kind == retry.KindAbort {
		r.aborted.Store(true)
	}
	subs := r.subs
	r.subs = subscribers{}
	return subs, true
}

func (r *Request) finish(o retry.Outcome, subs subscribers) {
	r.observeSettled(o)
	r.dispatch(o, subs)
	close(r.done)
}

func (r *Request) isSettled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settled
}

// dispatch runs the terminal callbacks in order: settings Success/Error,
// Done/Fail subscribers, the matching StatusCode hook, settings Complete,
// Always subscribers.
func (r *Request) dispatch(o retry.Outcome, subs subscribers) {
	s := &r.settings

	if o.Failure() {
		if s.Error != nil {
			s.Error(r, o.TextStatus, o.Err)
		}
		for _, fn := range subs.fail {
			fn(r, o.TextStatus, o.Err)
		}
	} else {
		if s.Success != nil {
			s.Success(o.Data, o.TextStatus, r)
		}
		for _, fn := range subs.done {
			fn(o.Data, o.TextStatus, r)
		}
	}

	if hook, ok := s.StatusCode[r.Status()]; ok && hook != nil {
		var data any
		if !o.Failure() {
			data = o.Data
		}
		hook(data, r)
	}

	if s.Complete != nil {
		s.Complete(r, o.TextStatus)
	}
	for _, fn := range subs.always {
		fn(r, o.TextStatus)
	}
}

func (r *Request) observeAttempt(o retry.Outcome) {
	tracking.RecordAttempt(r.ctx, r.method, o.Kind.String())

	attrs := []attribute.KeyValue{
		attribute.Int("ajax.attempt", o.Attempt),
		attribute.String("ajax.outcome", o.Kind.String()),
	}
	if o.Status != 0 {
		attrs = append(attrs, semconv.HTTPResponseStatusCode(o.Status))
	}
	r.span.AddEvent("attempt", trace.WithAttributes(attrs...))

	r.log.Debug().
		Int("attempt", o.Attempt).
		Str("kind", o.Kind.String()).
		Int("status", o.Status).
		Msg("Attempt settled")
}

func (r *Request) observeSettled(o retry.Outcome) {
	elapsed := time.Since(r.startedAt)
	attempts := r.Attempts()
	tracking.RecordRequest(context.WithoutCancel(r.ctx), r.method, o.Kind.String(), attempts, elapsed, o.Failure())

	r.span.SetAttributes(
		attribute.Int("ajax.attempts", attempts),
		attribute.String("ajax.outcome", o.Kind.String()),
	)
	if o.Status != 0 {
		r.span.SetAttributes(semconv.HTTPResponseStatusCode(o.Status))
	}

	if o.Failure() {
		r.span.RecordError(o.Err)
		r.span.SetStatus(codes.Error, o.TextStatus)
		r.log.Warn().
			Int("attempts", attempts).
			Str("kind", o.Kind.String()).
			Str("text_status", o.TextStatus).
			Int("status", o.Status).
			Dur("elapsed", elapsed).
			Err(o.Err).
			Msg("Request failed")
	} else {
		r.span.SetStatus(codes.Ok, "")
		r.log.Info().
			Int("attempts", attempts).
			Str("text_status", o.TextStatus).
			Int("status", o.Status).
			Dur("elapsed", elapsed).
			Msg("Request succeeded")
	}
	r.span.End()
}
