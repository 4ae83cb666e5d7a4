package observability

import (
	"errors"
	"fmt"
)

// ErrNilConfig is returned when Validate is called on a nil Config pointer.
var ErrNilConfig = errors.New("observability: config is nil")

// ErrMissingServiceName is returned when observability is enabled but no service name is configured.
var ErrMissingServiceName = errors.New("observability: service name is required when observability is enabled")

// ErrInvalidSampleRate is returned when the trace sample rate is outside the valid range [0.0, 1.0].
var ErrInvalidSampleRate = errors.New("observability: trace sample rate must be between 0.0 and 1.0")

// ErrInvalidProtocol is returned when the protocol (trace or metrics) is not "http" or "grpc".
var ErrInvalidProtocol = errors.New("observability: protocol must be either 'http' or 'grpc'")

// ErrInvalidEndpointFormat is returned when the endpoint format doesn't match the protocol.
var ErrInvalidEndpointFormat = errors.New("observability: invalid endpoint format for protocol")

// ProtocolError names the signal whose protocol is unsupported.
type ProtocolError struct {
	Signal   string
	Protocol string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s protocol '%s': %v", e.Signal, e.Protocol, ErrInvalidProtocol)
}

func (e *ProtocolError) Unwrap() error {
	return ErrInvalidProtocol
}

// EndpointError names the signal whose endpoint does not match its protocol.
type EndpointError struct {
	Signal   string
	Endpoint string
	Protocol string
}

func (e *EndpointError) Error() string {
	if e.Protocol == ProtocolGRPC {
		return fmt.Sprintf("%s endpoint %q: %v (grpc expects host:port without scheme)", e.Signal, e.Endpoint, ErrInvalidEndpointFormat)
	}
	return fmt.Sprintf("%s endpoint %q: %v (http expects a URL with scheme)", e.Signal, e.Endpoint, ErrInvalidEndpointFormat)
}

func (e *EndpointError) Unwrap() error {
	return ErrInvalidEndpointFormat
}
