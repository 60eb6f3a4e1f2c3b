// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Pipeline errors. Everything except ErrSessionInvalid is absorbed locally and
// turned into a retry opportunity or a lower-confidence result.
var (
	// Capture errors.
	ErrImageProcessing = errors.New("image processing failed")
	ErrDetectionMiss   = errors.New("no card boundary detected")
	ErrQualityRejected = errors.New("frame rejected by quality gate")

	// Identification errors.
	ErrProvider       = errors.New("identification provider failed")
	ErrChainExhausted = errors.New("identification chain exhausted")
	ErrNoProviders    = errors.New("no identification providers configured")

	// Session errors.
	ErrSessionInvalid    = errors.New("capture session invalid")
	ErrIllegalTransition = errors.New("illegal capture transition")

	// Database errors.
	ErrNotFound = errors.New("not found")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// ProviderErrorKind classifies why a provider call failed.
type ProviderErrorKind string

// Provider failure kinds.
const (
	KindNetwork     ProviderErrorKind = "network"
	KindAuth        ProviderErrorKind = "auth"
	KindRateLimit   ProviderErrorKind = "rate_limit"
	KindTimeout     ProviderErrorKind = "timeout"
	KindBadResponse ProviderErrorKind = "bad_response"
	KindServer      ProviderErrorKind = "server"
)

// ProviderError is recorded on an attempt when a provider call fails.
type ProviderError struct {
	Err        error
	Provider   string
	Kind       ProviderErrorKind
	StatusCode int
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}

// Retryable reports whether retrying the same provider might succeed.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindServer, KindNetwork:
		return true
	default:
		return false
	}
}

// NewProviderError wraps err with provider context.
func NewProviderError(provider string, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// ProviderErrorFromStatus maps an HTTP status onto a provider error.
func ProviderErrorFromStatus(provider string, status int, body string) *ProviderError {
	kind := KindBadResponse
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status >= 500:
		kind = KindServer
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: status,
		Err:        fmt.Errorf("unexpected response: %s", body),
	}
}

// ClassifyTransportError turns a transport-level failure into a provider error.
func ClassifyTransportError(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(provider, KindTimeout, err)
	}
	return NewProviderError(provider, KindNetwork, err)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable()
	}

	return false
}
