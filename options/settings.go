// Package options splits a caller's invocation into transport settings and
// resilience overrides.
package options

import (
	nethttp "net/http"
	"time"

	"github.com/gaborage/retryajax/retry"
)

// XHR is the read-only view of a request handle that hooks receive.
// Both a single physical attempt and the retrying facade satisfy it.
type XHR interface {
	ReadyState() int
	Status() int
	StatusText() string
	ResponseText() string
	GetResponseHeader(name string) string
	GetAllResponseHeaders() string
	// Context returns Settings.Context.
	Context() any
}

// SuccessHook runs once when the logical request succeeds.
type SuccessHook func(data any, textStatus string, xhr XHR)

// ErrorHook runs once when the logical request fails for good.
type ErrorHook func(xhr XHR, textStatus string, err error)

// CompleteHook runs once after the success or error hook.
type CompleteHook func(xhr XHR, textStatus string)

// StatusHook runs once when the terminal attempt's status matches its key.
// data is the decoded body on success and nil otherwise.
type StatusHook func(data any, xhr XHR)

// BeforeSendHook is replayed on every physical attempt right before it is sent.
// Returning an error fails that attempt as a network error.
type BeforeSendHook func(req *nethttp.Request) error

// Settings is everything destined for the underlying HTTP primitive plus the
// caller hooks. The Resilience field is reserved: Resolve strips it.
type Settings struct {
	URL      string
	Method   string
	Headers  map[string]string
	Body     []byte
	Timeout  time.Duration
	DataType string

	Username string
	Password string

	// Context is an opaque value handed back to hooks through XHR.Context.
	Context any

	Success    SuccessHook
	Error      ErrorHook
	Complete   CompleteHook
	StatusCode map[int]StatusHook
	BeforeSend BeforeSendHook

	// Resilience carries per-call policy overrides.
	Resilience *retry.Overrides
}

// EffectiveMethod returns Method, defaulting to GET.
func (s *Settings) EffectiveMethod() string {
	if s.Method == "" {
		return nethttp.MethodGet
	}
	return s.Method
}
