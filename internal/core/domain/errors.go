package domain

import (
	"errors"
	"fmt"
)

// The control loop distinguishes three kinds of failure:
//   - ConfigError: non-retryable, someone has to fix the site or the
//     policy file. Alerts immediately.
//   - TransientError: retryable network/API failures, counted toward
//     the consecutive-failure ceiling.
//   - ExhaustedRetriesError: the ceiling was exceeded, fatal to the
//     loop.

type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %s", e.Reason, e.Err)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError unless it already carries a
// kind, so adapters can blanket-wrap I/O failures without masking a
// ConfigError raised further down.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

type ExhaustedRetriesError struct {
	Failures int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("giving up after %d consecutive failures, last: %s", e.Failures, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}

func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
