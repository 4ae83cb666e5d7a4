package transport

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gaborage/retryajax/retry"
)

var (
	errAttemptAborted = errors.New("attempt aborted")
	errAttemptTimeout = errors.New("attempt timeout")
)

// attempt implements Attempt for one net/http exchange
type attempt struct {
	mu           sync.RWMutex
	readyState   int
	status       int
	statusText   string
	header       nethttp.Header
	responseText string
	outcome      retry.Outcome

	context any
	cancel  context.CancelCauseFunc
	done    chan struct{}
}

var _ Attempt = (*attempt)(nil)

func newAttempt(userContext any, cancel context.CancelCauseFunc) *attempt {
	return &attempt{
		readyState: StateOpened,
		context:    userContext,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (a *attempt) Done() <-chan struct{} {
	return a.done
}

func (a *attempt) Outcome() retry.Outcome {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.outcome
}

func (a *attempt) Abort() {
	a.cancel(errAttemptAborted)
}

func (a *attempt) ReadyState() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.readyState
}

func (a *attempt) Status() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *attempt) StatusText() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.statusText
}

func (a *attempt) ResponseText() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.responseText
}

func (a *attempt) Context() any {
	return a.context
}

// GetResponseHeader returns the named header once headers were received
func (a *attempt) GetResponseHeader(name string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.header == nil {
		return ""
	}
	return strings.Join(a.header.Values(name), ", ")
}

// GetAllResponseHeaders renders headers as "Name: value\r\n" lines sorted by name
func (a *attempt) GetAllResponseHeaders() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return FormatHeaders(a.header)
}

// FormatHeaders renders h the way GetAllResponseHeaders reports it.
func FormatHeaders(h nethttp.Header) string {
	if len(h) == 0 {
		return ""
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, strings.Join(h[k], ", "))
	}
	return b.String()
}

func (a *attempt) headersReceived(resp *nethttp.Response) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readyState = StateHeadersReceived
	a.status = resp.StatusCode
	a.statusText = retry.StatusTextOf(resp.Status, resp.StatusCode)
	a.header = resp.Header.Clone()
}

func (a *attempt) loading() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readyState = StateLoading
}

func (a *attempt) bodyReceived(body []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responseText = string(body)
}

// finish records the outcome and releases waiters. It must be called exactly once.
func (a *attempt) finish(o retry.Outcome) {
	a.mu.Lock()
	if o.Status == 0 {
		a.readyState = StateUnsent
		a.status = 0
		a.statusText = o.StatusText
	} else {
		a.readyState = StateDone
	}
	a.outcome = o
	a.mu.Unlock()

	a.cancel(nil)
	close(a.done)
}
