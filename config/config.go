// Package config loads runtime configuration from defaults, YAML and the
// environment.
package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix prefixes environment overrides: AJAX_RETRY_TRIES sets retry.tries.
const DefaultEnvPrefix = "AJAX_"

type loadOptions struct {
	files     []string
	documents [][]byte
	envPrefix string
}

// Option customizes Load.
type Option func(*loadOptions)

// WithFile loads a YAML file. A missing file is an error.
func WithFile(path string) Option {
	return func(o *loadOptions) {
		if path != "" {
			o.files = append(o.files, path)
		}
	}
}

// WithYAML loads an in-memory YAML document after any files.
func WithYAML(doc []byte) Option {
	return func(o *loadOptions) {
		o.documents = append(o.documents, doc)
	}
}

// WithEnvPrefix changes the environment variable prefix. An empty prefix
// disables environment overrides.
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. In-memory YAML documents
// 3. YAML configuration files
// 4. Default values (lowest priority)
func Load(opts ...Option) (*Config, error) {
	o := loadOptions{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	for _, path := range o.files {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, NewSourceError(path, err)
		}
	}

	for i, doc := range o.documents {
		if err := k.Load(rawbytes.Provider(doc), yaml.Parser()); err != nil {
			return nil, NewSourceError(fmt.Sprintf("yaml document %d", i+1), err)
		}
	}

	if o.envPrefix != "" {
		if err := k.Load(env.Provider(".", env.Opt{
			Prefix:        o.envPrefix,
			TransformFunc: envKeyTransformer(o.envPrefix),
		}), nil); err != nil {
			return nil, NewSourceError("environment", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// envKeyTransformer converts AJAX_HTTP_TIMEOUT to http.timeout. Keys of the
// Config struct are matched with underscores ignored, so AJAX_HTTP_CLIENT_TIMEOUT
// and AJAX_HTTP_CLIENTTIMEOUT both set http.clienttimeout. Anything else, such
// as header map entries, splits on every underscore.
func envKeyTransformer(prefix string) func(k, v string) (string, any) {
	known := make(map[string]string)
	collectKeys(reflect.TypeOf(Config{}), "", known)

	return func(k, v string) (string, any) {
		key := strings.ToLower(strings.TrimPrefix(k, prefix))
		if path, ok := known[strings.ReplaceAll(key, "_", "")]; ok {
			return path, v
		}
		return strings.ReplaceAll(key, "_", "."), v
	}
}

// collectKeys indexes every leaf koanf path of t by the path without dots.
func collectKeys(t reflect.Type, prefix string, keys map[string]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, path, keys)
			continue
		}
		keys[strings.ReplaceAll(path, ".", "")] = path
	}
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"log.level":  "info",
		"log.pretty": false,

		"retry.tries": 1,
		"retry.delay": "0s",

		"http.timeout":            "30s",
		"http.clienttimeout":      "0s",
		"http.datatype":           "",
		"http.requestidheader":    "X-Request-ID",
		"http.logpayloads":        false,
		"http.maxpayloadlogbytes": 1024,
		"http.tracing":            false,

		"observability.enabled":      false,
		"observability.service.name": "ajaxctl",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
