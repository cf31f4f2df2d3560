// Package businessflow contains the reconciliation use cases: ingest, match, settle and review
package businessflow

import (
	"errors"
	"fmt"
)

// Error kinds. Every business error wraps exactly one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrAlreadyMatched   = errors.New("already matched")
	ErrValidationFailed = errors.New("validation failed")
)

// Business flow error constants
var (
	// SMS-related errors
	ErrSMSNotFound         = fmt.Errorf("%w: sms not found", ErrNotFound)
	ErrSMSNotParsed        = fmt.Errorf("%w: sms has no parsed payload", ErrNotFound)
	ErrSMSAlreadyMatched   = fmt.Errorf("%w: sms is already linked to another entity", ErrAlreadyMatched)
	ErrSMSAlreadySettled   = fmt.Errorf("%w: sms is already settled", ErrAlreadyMatched)
	ErrRetryInFlight       = fmt.Errorf("%w: sms is already queued for parsing", ErrValidationFailed)
	ErrSMSStateChanged     = fmt.Errorf("%w: sms changed state, reload and try again", ErrValidationFailed)
	ErrInvalidResolution   = fmt.Errorf("%w: resolution must be linked_elsewhere, discard or ignored", ErrValidationFailed)
	ErrSMSTextRequired     = fmt.Errorf("%w: sms text is required", ErrValidationFailed)
	ErrInvalidPhoneNumber  = fmt.Errorf("%w: phone number is malformed", ErrValidationFailed)
	ErrInvalidReceivedAt   = fmt.Errorf("%w: receivedAt is not a valid timestamp", ErrValidationFailed)
	ErrInvalidWebhookToken = fmt.Errorf("%w: invalid webhook token", ErrUnauthorized)

	// Entity-related errors
	ErrEntityNotFound    = fmt.Errorf("%w: entity not found", ErrNotFound)
	ErrUnknownIntentKind = fmt.Errorf("%w: unknown entity kind", ErrValidationFailed)

	// Payment-related errors
	ErrPaymentNotFound         = fmt.Errorf("%w: payment not found", ErrNotFound)
	ErrPaymentAlreadyConfirmed = fmt.Errorf("%w: payment is already confirmed", ErrAlreadyMatched)
	ErrPaymentLinkedElsewhere  = fmt.Errorf("%w: payment is linked to another sms", ErrAlreadyMatched)
	ErrPaymentMissingIntent    = fmt.Errorf("%w: payment has no entity to settle", ErrValidationFailed)

	// Parser prompt errors
	ErrPromptNotFound     = fmt.Errorf("%w: parser prompt not found", ErrNotFound)
	ErrPromptBodyRequired = fmt.Errorf("%w: prompt body is required", ErrValidationFailed)

	// Lookback errors
	ErrInvalidLookback = fmt.Errorf("%w: lookback must be between 1 and 10080 minutes", ErrValidationFailed)
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsAlreadyMatched(err error) bool {
	return errors.Is(err, ErrAlreadyMatched)
}

func IsValidationFailed(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}

func IsSMSNotFound(err error) bool {
	return errors.Is(err, ErrSMSNotFound)
}

func IsEntityNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

func IsPaymentNotFound(err error) bool {
	return errors.Is(err, ErrPaymentNotFound)
}

func IsRetryInFlight(err error) bool {
	return errors.Is(err, ErrRetryInFlight)
}

func IsInvalidWebhookToken(err error) bool {
	return errors.Is(err, ErrInvalidWebhookToken)
}

// ErrorCode returns the stable code of a BusinessError, or the code of its kind
func ErrorCode(err error) string {
	var be *BusinessError
	if errors.As(err, &be) && be.Code != "" {
		return be.Code
	}
	switch {
	case IsNotFound(err):
		return "NOT_FOUND"
	case IsUnauthorized(err):
		return "UNAUTHORIZED"
	case IsAlreadyMatched(err):
		return "ALREADY_MATCHED"
	case IsValidationFailed(err):
		return "VALIDATION_FAILED"
	}
	return "INTERNAL_ERROR"
}
