package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ProviderError classifies provider call failures as transient/permanent.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Permanent builds a non-retryable error, e.g. for a payload without recipient.
func Permanent(format string, args ...any) error {
	return &ProviderError{
		Message:   fmt.Sprintf(format, args...),
		Transient: false,
	}
}

// IsPermanent reports whether retrying err can never succeed. Only errors
// explicitly classified by a provider are permanent; anything else, including
// timeouts, cancellation and unknown failures, is treated as transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return !providerErr.Transient
	}

	return false
}
