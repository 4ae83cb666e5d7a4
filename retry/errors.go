package retry

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
	"time"
)

// ClientError represents the failure categories a logical request can surface
type ClientError interface {
	error
	Type() ErrorType
}

// ErrorType defines the category of client error
type ErrorType string

const (
	NetworkError      ErrorType = "network"
	TimeoutError      ErrorType = "timeout"
	AbortError        ErrorType = "abort"
	HTTPError         ErrorType = "http"
	ParseError        ErrorType = "parse"
	ArgumentErrorType ErrorType = "argument"
)

// Literal text statuses and error texts reported for canned outcomes.
const (
	TextAbort       = "abort"
	TextTimeout     = "timeout"
	TextError       = "error"
	TextParseError  = "parsererror"
	TextSuccess     = "success"
	TextNoContent   = "nocontent"
	TextNotModified = "notmodified"
)

// networkError represents transport failures that never produced an HTTP status
type networkError struct {
	message string
	wrapped error
}

func (e *networkError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *networkError) Type() ErrorType {
	return NetworkError
}

func (e *networkError) Unwrap() error {
	return e.wrapped
}

// timeoutError always reads "timeout" so that retried and non-retried
// timeouts are indistinguishable to the caller.
type timeoutError struct {
	timeout time.Duration
}

func (e *timeoutError) Error() string {
	return TextTimeout
}

func (e *timeoutError) Type() ErrorType {
	return TimeoutError
}

// Timeout returns the per-attempt deadline that expired, if known.
func (e *timeoutError) Timeout() time.Duration {
	return e.timeout
}

type abortError struct{}

func (e *abortError) Error() string {
	return TextAbort
}

func (e *abortError) Type() ErrorType {
	return AbortError
}

// httpError carries the server status; its text is the server status text
type httpError struct {
	statusText string
	statusCode int
	body       []byte
}

func (e *httpError) Error() string {
	return e.statusText
}

func (e *httpError) Type() ErrorType {
	return HTTPError
}

func (e *httpError) StatusCode() int {
	return e.statusCode
}

func (e *httpError) Body() []byte {
	return e.body
}

// parseError represents a response body that failed to decode
type parseError struct {
	dataType string
	wrapped  error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.dataType, e.wrapped)
}

func (e *parseError) Type() ErrorType {
	return ParseError
}

func (e *parseError) Unwrap() error {
	return e.wrapped
}

// DataType returns the data type the body was decoded as.
func (e *parseError) DataType() string {
	return e.dataType
}

// ArgumentError is raised synchronously for malformed calls. It is never retried.
type ArgumentError struct {
	Message string
	wrapped error
}

func (e *ArgumentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *ArgumentError) Type() ErrorType {
	return ArgumentErrorType
}

func (e *ArgumentError) Unwrap() error {
	return e.wrapped
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, wrapped error) ClientError {
	return &networkError{
		message: message,
		wrapped: wrapped,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(timeout time.Duration) ClientError {
	return &timeoutError{timeout: timeout}
}

// NewAbortError creates a new abort error
func NewAbortError() ClientError {
	return &abortError{}
}

// NewHTTPError creates a new HTTP error. An empty statusText falls back to the
// canonical text for statusCode.
func NewHTTPError(statusText string, statusCode int, body []byte) ClientError {
	if statusText == "" {
		statusText = nethttp.StatusText(statusCode)
	}
	return &httpError{
		statusText: statusText,
		statusCode: statusCode,
		body:       body,
	}
}

// NewParseError creates a new parse error
func NewParseError(dataType string, wrapped error) ClientError {
	return &parseError{
		dataType: dataType,
		wrapped:  wrapped,
	}
}

// NewArgumentCountError reports a call with an unsupported number of positional arguments.
func NewArgumentCountError(got int) *ArgumentError {
	return &ArgumentError{Message: fmt.Sprintf("we support 1 or 2 args, got %d", got)}
}

// NewArgumentError creates an argument error, optionally wrapping a cause.
func NewArgumentError(message string, wrapped error) *ArgumentError {
	return &ArgumentError{Message: message, wrapped: wrapped}
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	if err == nil {
		return false
	}
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type() == errorType
	}
	return false
}

// IsHTTPStatusError checks if an error is an HTTP error with a specific status code
func IsHTTPStatusError(err error, statusCode int) bool {
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode() == statusCode
	}
	return false
}

// IsSuccessStatus checks if a status code represents success (2xx or 304)
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300 || statusCode == nethttp.StatusNotModified
}

// StatusTextOf strips the numeric prefix net/http puts in Response.Status
// ("500 Internal Server Error" becomes "Internal Server Error").
func StatusTextOf(status string, statusCode int) string {
	code := fmt.Sprintf("%d ", statusCode)
	if text, ok := strings.CutPrefix(status, code); ok && text != "" {
		return text
	}
	if status != "" && !strings.HasPrefix(status, code) {
		return status
	}
	return nethttp.StatusText(statusCode)
}
