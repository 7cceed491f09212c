package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeNetwork            = "network_error"
	ErrCodeInvalidState       = "invalid_state"
	ErrCodeDeliveryFailed     = "delivery_failed"
	ErrCodeSubscriptionClosed = "subscription_closed"
)

var (
	ErrNetwork            = errors.New("network error")
	ErrInvalidState       = errors.New("invalid state")
	ErrDeliveryFailed     = errors.New("delivery failed")
	ErrSubscriptionClosed = errors.New("subscription closed")
)

var sentinels = map[string]error{
	ErrCodeNetwork:            ErrNetwork,
	ErrCodeInvalidState:       ErrInvalidState,
	ErrCodeDeliveryFailed:     ErrDeliveryFailed,
	ErrCodeSubscriptionClosed: ErrSubscriptionClosed,
}

// CoreError wraps a code, a human-readable message and the underlying cause.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error that corresponds to the code.
func (e *CoreError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// CodeOf extracts the code of a CoreError in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func coreError(code, msg string, cause error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: cause}
}

func networkError(op string, cause error) *CoreError {
	return coreError(ErrCodeNetwork, op, cause)
}

func invalidState(format string, args ...any) *CoreError {
	return coreError(ErrCodeInvalidState, fmt.Sprintf(format, args...), nil)
}
