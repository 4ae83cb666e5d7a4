package ajax

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/retryajax/logger"
	"github.com/gaborage/retryajax/options"
	"github.com/gaborage/retryajax/retry"
	"github.com/gaborage/retryajax/transport"
)

// Result is what a settled request resolved or rejected with.
type Result struct {
	Data       any
	TextStatus string
	XHR        options.XHR
}

// attemptRef boxes the current attempt for atomic swaps
type attemptRef struct {
	attempt transport.Attempt
}

type subscribers struct {
	done   []options.SuccessHook
	fail   []options.ErrorHook
	always []options.CompleteHook
}

// Request is the facade returned by Client.Ajax. It is the same value for the
// whole retry sequence and is safe for concurrent use.
type Request struct {
	client   *Client
	settings options.Settings
	policy   retry.Config
	method   string
	log      logger.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	span      trace.Span
	startedAt time.Time

	current  atomic.Pointer[attemptRef]
	attempts atomic.Int32
	aborted  atomic.Bool

	mu      sync.Mutex
	settled bool
	outcome retry.Outcome
	subs    subscribers
	done    chan struct{}
}

var _ options.XHR = (*Request)(nil)

// Attempts returns the number of physical attempts issued so far.
func (r *Request) Attempts() int {
	return int(r.attempts.Load())
}

// Policy returns the resolved resilience policy of this request.
func (r *Request) Policy() retry.Config {
	return r.policy
}

// Done registers fn to run when the request succeeds. If it already did, fn
// runs immediately.
func (r *Request) Done(fn options.SuccessHook) *Request {
	if fn == nil {
		return r
	}
	r.mu.Lock()
	if !r.settled {
		r.subs.done = append(r.subs.done, fn)
		r.mu.Unlock()
		return r
	}
	o := r.outcome
	r.mu.Unlock()

	if !o.Failure() {
		fn(o.Data, o.TextStatus, r)
	}
	return r
}

// Fail registers fn to run when the request fails for good. If it already
// did, fn runs immediately.
func (r *Request) Fail(fn options.ErrorHook) *Request {
	if fn == nil {
		return r
	}
	r.mu.Lock()
	if !r.settled {
		r.subs.fail = append(r.subs.fail, fn)
		r.mu.Unlock()
		return r
	}
	o := r.outcome
	r.mu.Unlock()

	if o.Failure() {
		fn(r, o.TextStatus, o.Err)
	}
	return r
}

// Always registers fn to run once the request settled either way.
func (r *Request) Always(fn options.CompleteHook) *Request {
	if fn == nil {
		return r
	}
	r.mu.Lock()
	if !r.settled {
		r.subs.always = append(r.subs.always, fn)
		r.mu.Unlock()
		return r
	}
	o := r.outcome
	r.mu.Unlock()

	fn(r, o.TextStatus)
	return r
}

// Then is Done and Fail in one call.
func (r *Request) Then(success options.SuccessHook, failure options.ErrorHook) *Request {
	return r.Done(success).Fail(failure)
}

// Wait blocks until the request settled and all callbacks ran, or ctx is done.
// A cancelled ctx only stops waiting; use Abort to cancel the request.
// Wait must not be called from inside a callback of the same request.
func (r *Request) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	o := r.outcome
	return Result{Data: o.Data, TextStatus: o.TextStatus, XHR: r}, o.Err
}

// Settled returns a channel closed once the request settled and all
// callbacks ran.
func (r *Request) Settled() <-chan struct{} {
	return r.done
}

// Abort cancels the request. The in-flight attempt is aborted and no further
// attempt is sent; callbacks for the "abort" failure run before Abort returns.
// It is a no-op once the request settled.
func (r *Request) Abort() {
	o := retry.Aborted(r.Attempts())
	subs, ok := r.claim(o)
	if !ok {
		return
	}
	r.cancel(errRequestAborted)
	r.finish(o, subs)
}

func (r *Request) attempt() transport.Attempt {
	if ref := r.current.Load(); ref != nil {
		return ref.attempt
	}
	return nil
}

// ReadyState reads through to the current attempt; 0 after an abort.
func (r *Request) ReadyState() int {
	a := r.attempt()
	if r.aborted.Load() || a == nil {
		return transport.StateUnsent
	}
	return a.ReadyState()
}

// Status reads through to the current attempt; 0 after an abort.
func (r *Request) Status() int {
	a := r.attempt()
	if r.aborted.Load() || a == nil {
		return 0
	}
	return a.Status()
}

// StatusText reads through to the current attempt; "abort" after an abort.
func (r *Request) StatusText() string {
	if r.aborted.Load() {
		return retry.TextAbort
	}
	if a := r.attempt(); a != nil {
		return a.StatusText()
	}
	return ""
}

func (r *Request) ResponseText() string {
	a := r.attempt()
	if r.aborted.Load() || a == nil {
		return ""
	}
	return a.ResponseText()
}

func (r *Request) GetResponseHeader(name string) string {
	a := r.attempt()
	if r.aborted.Load() || a == nil {
		return ""
	}
	return a.GetResponseHeader(name)
}

func (r *Request) GetAllResponseHeaders() string {
	a := r.attempt()
	if r.aborted.Load() || a == nil {
		return ""
	}
	return a.GetAllResponseHeaders()
}

// Context returns Settings.Context.
func (r *Request) Context() any {
	return r.settings.Context
}

// unsupported lists facade mutators that would only touch the current
// attempt and so cannot survive a retry, with the replayed alternative.
var unsupported = map[string]string{
	"SetRequestHeader": "headers set on one attempt are lost on retry; use Settings.Headers or Settings.BeforeSend",
	"OverrideMimeType": "the mime type of one attempt is lost on retry; use Settings.DataType",
	"StatusCode":       "status hooks must be known before the first attempt; use Settings.StatusCode",
}

// SetRequestHeader has no effect; see Settings.BeforeSend.
func (r *Request) SetRequestHeader(name, _ string) *Request {
	r.diagnose("SetRequestHeader", name)
	return r
}

// OverrideMimeType has no effect; see Settings.DataType.
func (r *Request) OverrideMimeType(mimeType string) *Request {
	r.diagnose("OverrideMimeType", mimeType)
	return r
}

// StatusCode has no effect; see Settings.StatusCode.
func (r *Request) StatusCode(_ map[int]options.StatusHook) *Request {
	r.diagnose("StatusCode", "")
	return r
}

func (r *Request) diagnose(method, arg string) {
	d := Diagnostic{
		Method:  method,
		Message: fmt.Sprintf("%s is not supported on a retrying request: %s", method, unsupported[method]),
	}
	r.log.Warn().
		Str("method", method).
		Str("argument", arg).
		Str("url", r.settings.URL).
		Msg(d.Message)
	if r.client.diagnostic != nil {
		r.client.diagnostic(d)
	}
}
