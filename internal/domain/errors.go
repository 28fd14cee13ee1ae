package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError reports a missing or unusable setting. It is raised before any
// network or database I/O and is never worth retrying.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("config: %s is not set", e.Key)
	}
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// TransportError reports a failed upstream round trip. StatusCode is zero
// when no response was received (dial failure, timeout).
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("transport: upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("transport: upstream status %d: %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SchemaError reports an upstream payload that does not have the expected
// shape. Payload holds the raw body so the failure can be diagnosed without
// re-running the job.
type SchemaError struct {
	Missing []string
	Payload []byte
	Err     error
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema: unexpected API response shape")
	if len(e.Missing) > 0 {
		b.WriteString(": missing ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Payload) > 0 {
		b.WriteString(": payload ")
		b.Write(e.Payload)
	}
	return b.String()
}

func (e *SchemaError) Unwrap() error { return e.Err }

// StorageError reports a failed schema or data operation against the
// destination store. Op names the step, e.g. "ensure schema" or "insert".
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Retryable reports whether the external scheduler may reasonably re-invoke
// the run after err. Transport and schema failures qualify; config and
// storage failures do not.
func Retryable(err error) bool {
	var te *TransportError
	var se *SchemaError
	return errors.As(err, &te) || errors.As(err, &se)
}

// Kind returns a short label for err's taxonomy class, used as a log
// attribute and metric label.
func Kind(err error) string {
	var (
		ce  *ConfigError
		te  *TransportError
		se  *SchemaError
		ste *StorageError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &ce):
		return "config"
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &se):
		return "schema"
	case errors.As(err, &ste):
		return "storage"
	default:
		return "other"
	}
}
