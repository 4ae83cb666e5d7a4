package config

import (
	"time"

	"github.com/gaborage/retryajax/observability"
	"github.com/gaborage/retryajax/retry"
)

// Config is the full runtime configuration of the ajaxctl binary and of
// clients built from it.
type Config struct {
	Log           LogConfig            `koanf:"log"`
	Retry         RetryConfig          `koanf:"retry"`
	HTTP          HTTPConfig           `koanf:"http"`
	Observability observability.Config `koanf:"observability"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `koanf:"pretty"`
}

// RetryConfig holds the default resilience policy.
type RetryConfig struct {
	Tries int           `koanf:"tries" validate:"min=1"`
	Delay time.Duration `koanf:"delay" validate:"min=0"`
}

// Policy converts the configured defaults into a retry.Config.
func (c RetryConfig) Policy() retry.Config {
	return retry.Config{Tries: c.Tries, Delay: c.Delay}
}

// HTTPConfig holds transport settings.
type HTTPConfig struct {
	// Timeout bounds each physical attempt. Zero disables it.
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
	// ClientTimeout is a hard http.Client timeout on top of Timeout.
	ClientTimeout time.Duration `koanf:"clienttimeout" validate:"min=0"`
	// DataType forces response decoding; empty sniffs Content-Type.
	DataType string `koanf:"datatype" validate:"omitempty,oneof=json xml yaml text"`

	Headers         map[string]string `koanf:"headers"`
	RequestIDHeader string            `koanf:"requestidheader"`

	LogPayloads        bool `koanf:"logpayloads"`
	MaxPayloadLogBytes int  `koanf:"maxpayloadlogbytes" validate:"min=0"`

	// Tracing wraps the HTTP round tripper with client span instrumentation.
	Tracing bool `koanf:"tracing"`
}
