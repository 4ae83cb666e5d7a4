package transport

import (
	"context"
	nethttp "net/http"

	"github.com/gaborage/retryajax/logger"
	"github.com/gaborage/retryajax/options"
	"github.com/gaborage/retryajax/retry"
)

// DefaultMaxPayloadLogBytes caps logged body bytes when payload logging is on
const DefaultMaxPayloadLogBytes = 1024

// Ready states reported by Attempt.ReadyState.
const (
	StateUnsent          = 0
	StateOpened          = 1
	StateHeadersReceived = 2
	StateLoading         = 3
	StateDone            = 4
)

// Attempt is the handle of one physical request.
type Attempt interface {
	options.XHR

	// Done is closed once the attempt settled.
	Done() <-chan struct{}

	// Outcome returns the classified result. It is only meaningful after Done
	// is closed; Attempt is left zero for the caller to fill in.
	Outcome() retry.Outcome

	// Abort cancels the attempt. It is a no-op once the attempt settled.
	Abort()
}

// Transport issues physical attempts.
type Transport interface {
	Send(ctx context.Context, s *options.Settings) Attempt
}

// RequestInterceptor runs before every attempt is sent
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// BasicAuth contains basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Config holds the HTTP transport configuration
type Config struct {
	RequestInterceptors []RequestInterceptor
	BasicAuth           *BasicAuth
	DefaultHeaders      map[string]string
	// LogPayloads enables debug-level logging of request and response bodies
	LogPayloads bool
	// MaxPayloadLogBytes caps the number of body bytes logged when LogPayloads is enabled
	MaxPayloadLogBytes int
	// RequestIDHeader is the header carrying the logical request id (default: X-Request-ID)
	RequestIDHeader string
	// NewRequestID generates an id when the context carries none (default: uuid)
	NewRequestID func() string
}

// HTTP is the net/http backed Transport
type HTTP struct {
	httpClient *nethttp.Client
	logger     logger.Logger
	config     *Config
	decoders   map[string]Decoder
	callCount  int64
}

var _ Transport = (*HTTP)(nil)

// NewHTTP creates a transport with default configuration
func NewHTTP(log logger.Logger) *HTTP {
	return NewBuilder(log).Build()
}
