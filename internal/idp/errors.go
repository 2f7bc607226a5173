package idp

import (
	"errors"
	"fmt"
)

// Error codes for provider failures
const (
	// CodeUserCancelled means the user abandoned the interactive flow.
	CodeUserCancelled = "IDP_USER_CANCELLED"

	// CodeDuplicateRequest means a sign-in or sign-out call was issued
	// while another one was still in flight.
	CodeDuplicateRequest = "IDP_DUPLICATE_REQUEST"

	// CodeProviderUnavailable means the provider could not be reached or
	// rejected the bootstrap outright.
	CodeProviderUnavailable = "IDP_PROVIDER_UNAVAILABLE"

	// CodeProviderFailure is the catch-all for any other provider error.
	CodeProviderFailure = "IDP_PROVIDER_FAILURE"
)

// ProviderError represents a provider failure with code and context.
type ProviderError struct {
	// Code is the error code (e.g., IDP_USER_CANCELLED)
	Code string

	// Message is a human-readable error message
	Message string

	// Context provides additional details about the error
	Context map[string]interface{}

	// Cause is the underlying error that caused this error
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ProviderError.
func NewError(code, message string, context map[string]interface{}) *ProviderError {
	return &ProviderError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// WrapError wraps an existing error with a ProviderError.
func WrapError(code, message string, cause error, context map[string]interface{}) *ProviderError {
	return &ProviderError{
		Code:    code,
		Message: message,
		Context: context,
		Cause:   cause,
	}
}

// IsCode checks if an error is a ProviderError with the given code.
func IsCode(err error, code string) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Code == code
	}
	return false
}

// IsUserCancelled reports whether err is a user-cancelled sign-in.
func IsUserCancelled(err error) bool {
	return IsCode(err, CodeUserCancelled)
}

// IsDuplicateRequest reports whether err is a rejected concurrent request.
func IsDuplicateRequest(err error) bool {
	return IsCode(err, CodeDuplicateRequest)
}

// Reason extracts the human-readable message from a provider error.
//
// For a ProviderError this is the message without the code prefix; for
// anything else it is err.Error().
func Reason(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) {
		if perr.Cause != nil {
			return fmt.Sprintf("%s: %v", perr.Message, perr.Cause)
		}
		return perr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
