package tts

import (
	"errors"
	"time"

	"github.com/dgnsrekt/readaloud/tts/align"
	"github.com/dgnsrekt/readaloud/tts/markup"
)

// Common errors for the read-aloud system.
var (
	// Resolution errors
	ErrResolutionMiss = errors.New("no catalog entry for identifier")
	ErrEmptyText      = errors.New("nothing to speak")

	// Alignment errors
	ErrAlignmentMismatch = align.ErrAlignmentMismatch

	// Markup errors
	ErrMalformedMarkup = markup.ErrMalformedMarkup

	// Provider errors
	ErrProviderUnavailable    = errors.New("speech provider is not available")
	ErrProviderNotInitialized = errors.New("speech provider is not initialized")
	ErrProviderFailed         = errors.New("speech provider failed")
	ErrUnknownProvider        = errors.New("unknown speech provider")

	// Network errors
	ErrNetworkTimeout = errors.New("synthesis request timed out")
	ErrNetwork        = errors.New("synthesis request failed")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorKind classifies errors surfaced to the host.
type ErrorKind int

const (
	// KindProviderError covers any provider failure not classified below.
	KindProviderError ErrorKind = iota
	// KindResolutionMiss means a catalog id had no usable card.
	KindResolutionMiss
	// KindAlignmentMismatch means highlighting was disabled for the session.
	KindAlignmentMismatch
	// KindProviderUnavailable means the backend cannot run here.
	KindProviderUnavailable
	// KindMalformedMarkup means inline markup was left untouched.
	KindMalformedMarkup
	// KindNetworkTimeout means the synthesis service did not answer in time.
	KindNetworkTimeout
	// KindNetworkError means the synthesis request failed in transit.
	KindNetworkError
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindProviderError:
		return "provider_error"
	case KindResolutionMiss:
		return "resolution_miss"
	case KindAlignmentMismatch:
		return "alignment_mismatch"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindMalformedMarkup:
		return "malformed_markup"
	case KindNetworkTimeout:
		return "network_timeout"
	case KindNetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Unrecognised errors are provider errors.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrResolutionMiss), errors.Is(err, ErrEmptyText):
		return KindResolutionMiss
	case errors.Is(err, ErrAlignmentMismatch):
		return KindAlignmentMismatch
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, ErrMalformedMarkup):
		return KindMalformedMarkup
	case errors.Is(err, ErrNetworkTimeout):
		return KindNetworkTimeout
	case errors.Is(err, ErrNetwork):
		return KindNetworkError
	default:
		return KindProviderError
	}
}

// IsRecoverableError checks if retrying the same request could succeed.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrUnknownProvider),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrMalformedMarkup),
		errors.Is(err, ErrAlignmentMismatch):
		return false
	}

	return true
}

// ErrorSeverity represents the severity of an error.
type ErrorSeverity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo ErrorSeverity = iota
	// SeverityWarning is for warnings that don't prevent operation.
	SeverityWarning
	// SeverityError is for errors that prevent normal operation.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// TTSError provides detailed error information.
type TTSError struct {
	Err       error          // The underlying error
	Component string         // Component that generated the error
	Action    string         // Action being performed when error occurred
	Severity  ErrorSeverity  // Severity of the error
	Timestamp int64          // Unix timestamp when error occurred
	Context   map[string]any // Additional context
}

// Error implements the error interface.
func (e *TTSError) Error() string {
	if e.Err != nil {
		return e.Component + ": " + e.Action + ": " + e.Err.Error()
	}
	return "unknown read-aloud error"
}

// Unwrap returns the underlying error.
func (e *TTSError) Unwrap() error {
	return e.Err
}

// Kind classifies the underlying error.
func (e *TTSError) Kind() ErrorKind {
	return KindOf(e.Err)
}

// IsRecoverable checks if the error is recoverable.
func (e *TTSError) IsRecoverable() bool {
	return IsRecoverableError(e.Err)
}

// NewTTSError creates a new error with context.
func NewTTSError(err error, component, action string) *TTSError {
	severity := SeverityError
	switch KindOf(err) {
	case KindAlignmentMismatch, KindResolutionMiss, KindMalformedMarkup:
		severity = SeverityWarning
	}
	return &TTSError{
		Err:       err,
		Component: component,
		Action:    action,
		Severity:  severity,
		Timestamp: time.Now().Unix(),
		Context:   make(map[string]any),
	}
}

// WithSeverity sets the error severity.
func (e *TTSError) WithSeverity(severity ErrorSeverity) *TTSError {
	e.Severity = severity
	return e
}

// WithContext adds context to the error.
func (e *TTSError) WithContext(key string, value any) *TTSError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
