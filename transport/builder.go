package transport

import (
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gaborage/retryajax/logger"
)

// Builder provides a fluent interface for configuring the HTTP transport
type Builder struct {
	config     *Config
	logger     logger.Logger
	httpClient *nethttp.Client
	roundTrip  nethttp.RoundTripper
	timeout    time.Duration
	decoders   map[string]Decoder
	tracing    bool
}

// NewBuilder creates a new transport builder
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		config: &Config{
			RequestInterceptors: []RequestInterceptor{},
			DefaultHeaders:      make(map[string]string),
			MaxPayloadLogBytes:  DefaultMaxPayloadLogBytes,
			RequestIDHeader:     HeaderXRequestID,
			NewRequestID:        newUUID,
		},
		logger:   log,
		decoders: defaultDecoders(),
	}
}

// WithHTTPClient uses a copy of the given client instead of a fresh one. Its
// Transport and Timeout are kept unless overridden by WithTransport or
// WithClientTimeout; c itself is never modified.
func (b *Builder) WithHTTPClient(c *nethttp.Client) *Builder {
	b.httpClient = c
	return b
}

// WithTransport sets the RoundTripper used by the underlying client
func (b *Builder) WithTransport(rt nethttp.RoundTripper) *Builder {
	b.roundTrip = rt
	return b
}

// WithClientTimeout sets a hard http.Client timeout that applies to every
// attempt on top of Settings.Timeout.
func (b *Builder) WithClientTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithTracing wraps the round tripper so every physical attempt gets its own
// client span, nested under the logical request span.
func (b *Builder) WithTracing() *Builder {
	b.tracing = true
	return b
}

// WithBasicAuth sets basic authentication credentials used when the settings carry none
func (b *Builder) WithBasicAuth(username, password string) *Builder {
	b.config.BasicAuth = &BasicAuth{
		Username: username,
		Password: password,
	}
	return b
}

// WithDefaultHeader adds a default header that will be sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithPayloadLogging enables body logging capped at maxBytes (<=0 keeps the default cap)
func (b *Builder) WithPayloadLogging(maxBytes int) *Builder {
	b.config.LogPayloads = true
	if maxBytes > 0 {
		b.config.MaxPayloadLogBytes = maxBytes
	}
	return b
}

// WithRequestIDHeader sets the request id header name; empty keeps the default
func (b *Builder) WithRequestIDHeader(header string) *Builder {
	if header != "" {
		b.config.RequestIDHeader = header
	}
	return b
}

// WithRequestIDGenerator sets the request id generator; nil keeps the default
func (b *Builder) WithRequestIDGenerator(gen func() string) *Builder {
	if gen != nil {
		b.config.NewRequestID = gen
	}
	return b
}

// WithDecoder registers or replaces the decoder for a data type
func (b *Builder) WithDecoder(dataType string, d Decoder) *Builder {
	if dataType != "" && d != nil {
		b.decoders[dataType] = d
	}
	return b
}

// Build creates the transport with the configured options
func (b *Builder) Build() *HTTP {
	// copied so the caller's client keeps its own Transport and Timeout
	client := &nethttp.Client{}
	if b.httpClient != nil {
		*client = *b.httpClient
	}
	if b.roundTrip != nil {
		client.Transport = b.roundTrip
	}
	if b.tracing {
		base := client.Transport
		if base == nil {
			base = nethttp.DefaultTransport
		}
		client.Transport = otelhttp.NewTransport(base,
			otelhttp.WithSpanNameFormatter(func(_ string, r *nethttp.Request) string {
				return "ajax.attempt " + r.Method
			}),
		)
	}
	if b.timeout > 0 {
		client.Timeout = b.timeout
	}
	log := b.logger
	if log == nil {
		log = logger.Nop()
	}
	return &HTTP{
		httpClient: client,
		logger:     log,
		config:     b.config,
		decoders:   b.decoders,
	}
}
