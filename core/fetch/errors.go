package fetch

import "fmt"

// ErrorKind classifies a fetch failure. The retryable subset is timeout,
// connection, and 5xx status; malformed URLs and 4xx are terminal.
type ErrorKind string

const (
	KindTimeout      ErrorKind = "timeout"
	KindConnection   ErrorKind = "connection"
	KindHTTPStatus   ErrorKind = "http-status"
	KindMalformedURL ErrorKind = "malformed-url"
)

// Error is a classified fetch failure for one URL.
type Error struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetching %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetching %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure class is transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection:
		return true
	case KindHTTPStatus:
		return e.Status >= 500
	default:
		return false
	}
}
