package retry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultTries is one attempt, i.e. no retry
	DefaultTries = 1

	// DefaultDelay is the default wait between attempts
	DefaultDelay = time.Duration(0)
)

// ShouldRetryFunc decides whether a failed attempt may be retried.
// Its answer is authoritative when the attempt budget allows another try.
type ShouldRetryFunc func(Outcome) bool

// DefaultShouldRetry retries transport-level failures only: network errors
// and timeouts. HTTP error statuses, aborts and parse errors are final.
func DefaultShouldRetry(o Outcome) bool {
	return o.Kind == KindNetworkError || o.Kind == KindTimeout
}

// Config is the resolved resilience policy for one logical request.
type Config struct {
	Tries       int             `validate:"min=1"`
	Delay       time.Duration   `validate:"min=0"`
	ShouldRetry ShouldRetryFunc `validate:"-"`
}

// Overrides carries per-call policy fields. Zero values inherit from the defaults.
type Overrides struct {
	Tries       int
	Delay       time.Duration
	ShouldRetry ShouldRetryFunc
}

// DefaultConfig returns the no-retry policy.
func DefaultConfig() Config {
	return Config{
		Tries: DefaultTries,
		Delay: DefaultDelay,
	}
}

// Merge overlays the non-zero fields of o onto c and returns the result.
// A zero Tries in c is normalized to DefaultTries.
func (c Config) Merge(o *Overrides) Config {
	merged := c
	if merged.Tries == 0 {
		merged.Tries = DefaultTries
	}
	if o == nil {
		return merged
	}
	if o.Tries != 0 {
		merged.Tries = o.Tries
	}
	if o.Delay != 0 {
		merged.Delay = o.Delay
	}
	if o.ShouldRetry != nil {
		merged.ShouldRetry = o.ShouldRetry
	}
	return merged
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the policy invariants (Tries >= 1, Delay >= 0).
func (c Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return NewArgumentError(
				fmt.Sprintf("invalid resilience option %s=%v (must be %s %s)", fe.Field(), fe.Value(), fe.Tag(), fe.Param()),
				err,
			)
		}
		return NewArgumentError("invalid resilience options", err)
	}
	return nil
}

// Eligible reports whether another attempt may follow the failed outcome o
// given that o.Attempt attempts have been made. ShouldRetry is consulted only
// when the budget and the outcome kind allow a retry at all.
func (c Config) Eligible(o Outcome) bool {
	if !o.Failure() || o.Permanent || o.Attempt >= c.Tries || o.Kind.Terminal() {
		return false
	}
	if c.ShouldRetry != nil {
		return c.ShouldRetry(o)
	}
	return DefaultShouldRetry(o)
}
