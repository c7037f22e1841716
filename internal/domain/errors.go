package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeOriginAuth       = "ORIGIN_NOT_AUTHORIZED"
	ErrCodeUnsupportedFile  = "UNSUPPORTED_FILE_TYPE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidSourceType    = NewDomainError(ErrCodeValidation, "invalid source type")
	ErrInvalidSourceStatus  = NewDomainError(ErrCodeValidation, "invalid source status")
	ErrInvalidAccessLevel   = NewDomainError(ErrCodeValidation, "invalid access level")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrSourceNotFound = NewDomainError(ErrCodeNotFound, "knowledge source not found")
	ErrUserNotFound   = NewDomainError(ErrCodeNotFound, "user not found")
)

// Already exists errors
var (
	ErrSourceAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "a knowledge source with this name already exists for this user")
	ErrUserAlreadyExists   = NewDomainError(ErrCodeAlreadyExists, "user already exists")
)

// Authorization errors
var (
	ErrInvalidToken        = NewDomainError(ErrCodeUnauthorized, "invalid access token")
	ErrAccessDenied        = NewDomainError(ErrCodeForbidden, "user does not have access to this knowledge source")
	ErrNotOwner            = NewDomainError(ErrCodeForbidden, "only the owner may modify this knowledge source")
	ErrOriginNotAuthorized = NewDomainError(ErrCodeOriginAuth, "user has not authorized the file origin")
)

// Operation errors
var (
	ErrIngestionInProgress = NewDomainError(ErrCodeInvalidOperation, "an ingestion run is already in progress for this knowledge source")
)

// OriginAuthError signals that the remote file origin rejected the user's
// credentials. It carries the URL the user must visit to authorize access
// so callers can surface a remediation step instead of a hard failure.
type OriginAuthError struct {
	AuthURL string
	Err     error
}

func (e *OriginAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] origin not authorized: %v", ErrCodeOriginAuth, e.Err)
	}
	return fmt.Sprintf("[%s] origin not authorized", ErrCodeOriginAuth)
}

func (e *OriginAuthError) Unwrap() error {
	return e.Err
}

// NewOriginAuthError creates an OriginAuthError carrying an authorization URL.
func NewOriginAuthError(authURL string, err error) *OriginAuthError {
	return &OriginAuthError{AuthURL: authURL, Err: err}
}
