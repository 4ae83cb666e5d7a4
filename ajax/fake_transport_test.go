package ajax

import (
	"context"
	nethttp "net/http"
	"sync"

	"github.com/gaborage/retryajax/options"
	"github.com/gaborage/retryajax/retry"
	"github.com/gaborage/retryajax/transport"
)

// step scripts one physical attempt. It may block on ctx.
type step func(ctx context.Context) retry.Outcome

func succeed(data any) step {
	return func(context.Context) retry.Outcome {
		return retry.Outcome{
			Kind:       retry.KindSuccess,
			TextStatus: retry.TextSuccess,
			Data:       data,
			Status:     nethttp.StatusOK,
			StatusText: "OK",
		}
	}
}

func failNetwork() step {
	return func(context.Context) retry.Outcome {
		return retry.Outcome{
			Kind:       retry.KindNetworkError,
			TextStatus: retry.TextError,
			StatusText: retry.TextError,
			Err:        retry.NewNetworkError("request execution failed", nil),
		}
	}
}

func failTimeout() step {
	return func(context.Context) retry.Outcome {
		return retry.Outcome{
			Kind:       retry.KindTimeout,
			TextStatus: retry.TextTimeout,
			StatusText: retry.TextTimeout,
			Err:        retry.NewTimeoutError(0),
		}
	}
}

func failStatus(code int) step {
	return func(context.Context) retry.Outcome {
		text := nethttp.StatusText(code)
		return retry.Outcome{
			Kind:       retry.KindHTTPError,
			TextStatus: retry.TextError,
			Status:     code,
			StatusText: text,
			Err:        retry.NewHTTPError(text, code, nil),
		}
	}
}

func failParse() step {
	return func(context.Context) retry.Outcome {
		return retry.Outcome{
			Kind:       retry.KindParseError,
			TextStatus: retry.TextParseError,
			Status:     nethttp.StatusOK,
			StatusText: "OK",
			Err:        retry.NewParseError("json", context.Canceled),
		}
	}
}

// failNetworkAfter ignores cancellation and fails with a network error once
// gate is closed
func failNetworkAfter(gate <-chan struct{}) step {
	return func(ctx context.Context) retry.Outcome {
		<-gate
		return failNetwork()(ctx)
	}
}

// hang blocks until the attempt is cancelled
func hang() step {
	return func(ctx context.Context) retry.Outcome {
		<-ctx.Done()
		return retry.Aborted(0)
	}
}

// fakeTransport replays scripted steps; the last step repeats once the
// script is exhausted.
type fakeTransport struct {
	mu       sync.Mutex
	steps    []step
	calls    int
	contexts []context.Context
}

func newFakeTransport(steps ...step) *fakeTransport {
	return &fakeTransport{steps: steps}
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) Contexts() []context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]context.Context(nil), f.contexts...)
}

func (f *fakeTransport) Send(ctx context.Context, s *options.Settings) transport.Attempt {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.contexts = append(f.contexts, ctx)
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	st := f.steps[i]
	f.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a := &fakeAttempt{
		userContext: s.Context,
		readyState:  transport.StateOpened,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go func() {
		defer cancel()
		a.finish(st(ctx))
	}()
	return a
}

type fakeAttempt struct {
	mu          sync.RWMutex
	userContext any
	readyState  int
	outcome     retry.Outcome
	cancel      context.CancelFunc
	done        chan struct{}
}

func (a *fakeAttempt) finish(o retry.Outcome) {
	a.mu.Lock()
	a.outcome = o
	if o.Status == 0 {
		a.readyState = transport.StateUnsent
	} else {
		a.readyState = transport.StateDone
	}
	a.mu.Unlock()
	close(a.done)
}

func (a *fakeAttempt) Done() <-chan struct{} { return a.done }
func (a *fakeAttempt) Abort()                { a.cancel() }

func (a *fakeAttempt) Outcome() retry.Outcome {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.outcome
}

func (a *fakeAttempt) ReadyState() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.readyState
}

func (a *fakeAttempt) Status() int { return a.Outcome().Status }

func (a *fakeAttempt) StatusText() string { return a.Outcome().StatusText }

func (a *fakeAttempt) ResponseText() string {
	if s, ok := a.Outcome().Data.(string); ok {
		return s
	}
	return ""
}

func (a *fakeAttempt) GetResponseHeader(name string) string {
	if a.Outcome().Status != 0 && nethttp.CanonicalHeaderKey(name) == "Content-Type" {
		return "text/plain"
	}
	return ""
}

func (a *fakeAttempt) GetAllResponseHeaders() string {
	if a.Outcome().Status != 0 {
		return "Content-Type: text/plain\r\n"
	}
	return ""
}

func (a *fakeAttempt) Context() any { return a.userContext }
