package connector

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks errors that are fatal for one AREA call and are
	// never retried automatically: unknown services, missing credentials.
	ErrConfiguration = errors.New("connector configuration error")
	// ErrUnknownService is returned by the registry for unregistered names.
	ErrUnknownService = errors.New("unknown service")
	// ErrUnsupported marks an identifier the connector does not implement.
	ErrUnsupported = errors.New("unsupported identifier")
)

// ConfigError describes a configuration problem for one service.
type ConfigError struct {
	Service string
	Reason  string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is makes every ConfigError match ErrConfiguration.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool { return errors.Is(err, ErrConfiguration) }

// Category determines whether a failed vendor call may be retried.
type Category int

const (
	// Recoverable failures (network, 408, 429, 5xx) may succeed on retry.
	Recoverable Category = iota
	// Irrecoverable failures (other 4xx, malformed bodies) fail immediately.
	Irrecoverable
)

func (c Category) String() string {
	switch c {
	case Recoverable:
		return "Recoverable"
	case Irrecoverable:
		return "Irrecoverable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Failure is the error half of an HTTP call Result.
type Failure struct {
	Category Category
	Status   int    // 0 for network-level failures
	Body     string // truncated response body
	Err      error
}

func (f *Failure) Error() string {
	if f.Status > 0 {
		return fmt.Sprintf("[%s] HTTP %d: %v", f.Category, f.Status, f.Err)
	}
	return fmt.Sprintf("[%s] %v", f.Category, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Unauthorized reports whether the vendor rejected the credentials.
func (f *Failure) Unauthorized() bool { return f != nil && (f.Status == 401 || f.Status == 403) }

const maxBody = 512

func statusFailure(status int, body []byte, op string) *Failure {
	b := string(body)
	if len(b) > maxBody {
		b = b[:maxBody]
	}
	return &Failure{
		Category: statusCategory(status),
		Status:   status,
		Body:     b,
		Err:      fmt.Errorf("%s failed: HTTP %d", op, status),
	}
}

func networkFailure(op string, err error) *Failure {
	return &Failure{Category: Recoverable, Err: fmt.Errorf("%s network error: %w", op, err)}
}

func malformed(op string, err error) *Failure {
	return &Failure{Category: Irrecoverable, Err: fmt.Errorf("%s malformed response: %w", op, err)}
}

func statusCategory(status int) Category {
	switch {
	case status == 408, status == 429:
		return Recoverable
	case status >= 400 && status < 500:
		return Irrecoverable
	default:
		return Recoverable
	}
}
