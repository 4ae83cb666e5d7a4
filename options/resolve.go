package options

import (
	"fmt"

	"github.com/gaborage/retryajax/retry"
)

// Resolve parses the positional call arguments into resilience overrides and
// transport settings. Supported shapes are (url), (settings) and
// (url, settings), where settings is a Settings value or pointer.
//
// The explicit url argument always wins over Settings.URL. The returned
// settings are a shallow copy with the reserved Resilience field cleared;
// caller-supplied values are never modified. Overrides is never nil.
func Resolve(args ...any) (*retry.Overrides, Settings, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, Settings{}, retry.NewArgumentCountError(len(args))
	}

	var (
		url    string
		hasURL bool
		s      Settings
	)

	switch first := args[0].(type) {
	case string:
		url, hasURL = first, true
	default:
		settings, err := settingsArg(1, first)
		if err != nil {
			return nil, Settings{}, err
		}
		if len(args) == 2 {
			return nil, Settings{}, retry.NewArgumentError(
				fmt.Sprintf("argument 1 must be a URL when two arguments are given, got %T", first), nil)
		}
		s = settings
	}

	if len(args) == 2 {
		settings, err := settingsArg(2, args[1])
		if err != nil {
			return nil, Settings{}, err
		}
		s = settings
	}

	if hasURL {
		s.URL = url
	}

	overrides := &retry.Overrides{}
	if s.Resilience != nil {
		*overrides = *s.Resilience
		s.Resilience = nil
	}
	return overrides, s, nil
}

// settingsArg copies a Settings argument found at the 1-based position pos.
func settingsArg(pos int, arg any) (Settings, error) {
	switch v := arg.(type) {
	case Settings:
		return v, nil
	case *Settings:
		if v == nil {
			return Settings{}, retry.NewArgumentError(fmt.Sprintf("argument %d is a nil *Settings", pos), nil)
		}
		return *v, nil
	default:
		want := "Settings"
		if pos == 1 {
			want = "a URL string or Settings"
		}
		return Settings{}, retry.NewArgumentError(
			fmt.Sprintf("argument %d must be %s, got %T", pos, want, arg), nil)
	}
}
