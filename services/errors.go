package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeForbidden         ErrorType = "forbidden"
	ErrorTypeConflict          ErrorType = "conflict"
	ErrorTypeInsufficientFunds ErrorType = "insufficient_funds"
	ErrorTypeConfiguration     ErrorType = "configuration"
	ErrorTypeInternal          ErrorType = "internal"
	ErrorTypeExternal          ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrCardNotFound        = NewDomainError(ErrorTypeNotFound, MsgCardDetailsNotFound, nil)
	ErrControlNotFound     = NewDomainError(ErrorTypeNotFound, "control not found", nil)
	ErrTransactionNotFound = NewDomainError(ErrorTypeNotFound, "transaction not found", nil)

	// Validation Errors
	ErrInvalidInput        = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidControlName  = NewDomainError(ErrorTypeValidation, MsgControlInvalidName, nil)
	ErrControlValueInvalid = NewDomainError(ErrorTypeValidation, MsgControlValidationFailed, nil)
	ErrMultipleNotAllowed  = NewDomainError(ErrorTypeValidation, MsgControlMultipleCheckFailed, nil)

	// Authorization Errors
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)

	// Permission Errors
	ErrForbidden = NewDomainError(ErrorTypeForbidden, MsgAuthorizationFailure, nil)

	// Balance Errors
	ErrInsufficientBalance = NewDomainError(ErrorTypeInsufficientFunds, MsgInsufficientBalance, nil)

	// Conflict Errors
	ErrDuplicateTransaction = NewDomainError(ErrorTypeConflict, "transaction already processed", nil)
	ErrDuplicateCard        = NewDomainError(ErrorTypeConflict, "card already registered", nil)

	// Configuration Errors
	ErrUnknownControl         = NewDomainError(ErrorTypeConfiguration, "unknown control", nil)
	ErrUnknownOperator        = NewDomainError(ErrorTypeConfiguration, "unknown operator", nil)
	ErrMalformedMandatorySpec = NewDomainError(ErrorTypeConfiguration, "malformed mandatory control spec", nil)

	// Internal Errors
	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)
	ErrCacheFailed       = NewDomainError(ErrorTypeInternal, "cache operation failed", nil)

	// External Gateway Errors
	ErrGatewayUnavailable = NewDomainError(ErrorTypeExternal, MsgConnectionError, nil)
	ErrTxnFetch           = NewDomainError(ErrorTypeExternal, MsgTxnFetchFailure, nil)
	ErrCardCreation       = NewDomainError(ErrorTypeExternal, MsgCardCreationFailed, nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnauthorized
	}
	return false
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeForbidden
	}
	return false
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeConflict
	}
	return false
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInternal
	}
	return false
}

// IsInsufficientFundsError checks if an error is an insufficient balance error
func IsInsufficientFundsError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInsufficientFunds
	}
	return false
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeConfiguration
	}
	return false
}

// IsExternalError checks if an error is an external gateway error
func IsExternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeExternal
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external gateway error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

// Wrap returns a copy of a sentinel domain error carrying err as its cause,
// so errors.Is matches both the sentinel type and err.
func Wrap(sentinel *DomainError, err error) *DomainError {
	return NewDomainError(sentinel.Type, sentinel.Message, err)
}
