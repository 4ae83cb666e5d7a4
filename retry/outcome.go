package retry

// Kind classifies the result of one physical attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindNetworkError
	KindHTTPError
	KindTimeout
	KindAbort
	KindParseError
)

var kindNames = map[Kind]string{
	KindSuccess:      "success",
	KindNetworkError: "network-error",
	KindHTTPError:    "http-error",
	KindTimeout:      "timeout",
	KindAbort:        "abort",
	KindParseError:   "parse-error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether a failure of this kind ends the sequence no matter
// what the policy says. The request either reached a server response that
// failed to decode or was deliberately cancelled.
func (k Kind) Terminal() bool {
	return k == KindAbort || k == KindParseError
}

// Outcome describes one physical attempt after classification.
type Outcome struct {
	// Attempt is the 1-based index of the physical attempt.
	Attempt int
	Kind    Kind

	// Data holds the decoded body on success.
	Data any

	// TextStatus is "success", "nocontent", "notmodified", "error", "timeout",
	// "abort" or "parsererror".
	TextStatus string

	// Err is nil on success and a ClientError otherwise.
	Err error

	Status     int
	StatusText string

	// Permanent marks a failure that would recur on every attempt, such as a
	// request that could not be built. It is never retried.
	Permanent bool
}

// Failure reports whether the attempt failed.
func (o Outcome) Failure() bool {
	return o.Kind != KindSuccess
}

// Aborted builds the canonical abort outcome.
func Aborted(attempt int) Outcome {
	return Outcome{
		Attempt:    attempt,
		Kind:       KindAbort,
		TextStatus: TextAbort,
		Err:        NewAbortError(),
		StatusText: TextAbort,
	}
}
