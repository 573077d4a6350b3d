package provider

import (
	"errors"
	"fmt"
	"time"
)

// AuthError means the credential is invalid, expired or revoked on the
// provider side. Never retried; the account has to re-run the
// authorization flow.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth error: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransientError covers network failures and provider 5xx responses.
// Eligible for retry with backoff.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s transient error: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError covers malformed payloads and policy rejections.
// Never retried.
type PermanentError struct {
	Provider string
	Err      error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s permanent error: %v", e.Provider, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// RateLimitError is a provider-side 429. Retried after RetryAfter.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var re *RateLimitError
	return errors.As(err, &re)
}

func IsPermanent(err error) bool {
	var e *PermanentError
	return errors.As(err, &e)
}

// RetryAfterOf returns the provider-suggested wait, or zero.
func RetryAfterOf(err error) time.Duration {
	var re *RateLimitError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}
