package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds surfaced by the data-access layer. Match them with errors.Is.
var (
	// ErrConfiguration reports a bad or missing connection source.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound reports a missing file referenced by the configuration.
	ErrNotFound = errors.New("not found")

	// ErrNotConnected reports an operation attempted before connect or after close.
	ErrNotConnected = errors.New("not connected")

	// ErrValidation reports invalid caller input.
	ErrValidation = errors.New("validation error")

	// ErrQuery reports a statement rejected by the server.
	ErrQuery = errors.New("query error")

	// ErrConnection reports a lost or unusable session.
	ErrConnection = errors.New("connection error")
)

// ConfigError is returned when a connection source cannot be turned into a
// connection string.
type ConfigError struct {
	Path    string
	Section string
	Missing []string
	Err     error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(ErrConfiguration.Error())
	if e.Path != "" {
		fmt.Fprintf(&b, ": %s", e.Path)
		if e.Section != "" {
			fmt.Fprintf(&b, " [%s]", e.Section)
		}
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing keys: %s", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}

// QueryError wraps a statement failure reported by the server.
type QueryError struct {
	Statement string
	Code      string // SQLSTATE when the driver exposes one
	Err       error
}

func (e *QueryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("query failed (SQLSTATE %s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() []error { return []error{ErrQuery, e.Err} }

// ConnectionError wraps a failure of the underlying session.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection lost during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrConnection, e.Err} }

// Validationf builds an ErrValidation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
