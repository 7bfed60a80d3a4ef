package reconcile

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrConcurrencyConflict is returned when an observation kept changing under
	// the caller and retries were exhausted.
	ErrConcurrencyConflict = errors.New("concurrent modification of observation")

	// ErrRepositoryUnavailable wraps I/O failures of the settings or observation stores.
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	// ErrInvalidTransition is returned for a manual action the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrExpired is returned when a manual link is requested past the observation deadline.
	ErrExpired = errors.New("observation expired")
)

// ValidationError reports a malformed observation or an unknown wallet reference.
// State is never mutated when it is returned.
type ValidationError struct {
	ObservationID string
	Field         string
	Reason        string
	Err           error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid observation %q: %s: %s", e.ObservationID, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports missing or out-of-range wallet settings.
// The wallet is treated as disabled: its observations are left untouched.
type ConfigurationError struct {
	WalletID string
	Err      error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("wallet %q: settings not configured", e.WalletID)
	}
	return fmt.Sprintf("wallet %q: %v", e.WalletID, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConfiguration reports whether err is or wraps a *ConfigurationError.
func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}

// Reason classifies err into a short label for batch results and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return "validation"
	case IsConfiguration(err):
		return "configuration"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrRepositoryUnavailable):
		return "repository_unavailable"
	default:
		return "internal"
	}
}
