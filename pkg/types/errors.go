package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a ledger operation was rejected
type ErrorKind string

const (
	KindUnauthorized         ErrorKind = "unauthorized"
	KindSystemPaused         ErrorKind = "system_paused"
	KindAlreadyRegistered    ErrorKind = "already_registered"
	KindAlreadyExists        ErrorKind = "already_exists"
	KindNotFound             ErrorKind = "not_found"
	KindInvalidInput         ErrorKind = "invalid_input"
	KindInvalidTarget        ErrorKind = "invalid_target"
	KindExpired              ErrorKind = "expired"
	KindAlreadyFulfilled     ErrorKind = "already_fulfilled"
	KindNonTransferable      ErrorKind = "non_transferable"
	KindGrantInactive        ErrorKind = "grant_inactive"
	KindPatientNotRegistered ErrorKind = "patient_not_registered"
	KindInternal             ErrorKind = "internal"
)

// LedgerError is the structured error returned by every rejected operation
type LedgerError struct {
	Kind    ErrorKind              `json:"kind"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// Is matches any LedgerError of the same kind, so the Err* sentinels below
// work with errors.Is regardless of code or message.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithDetail attaches a key/value pair to the error details
func (e *LedgerError) WithDetail(key string, value interface{}) *LedgerError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is
var (
	ErrUnauthorized         = &LedgerError{Kind: KindUnauthorized}
	ErrSystemPaused         = &LedgerError{Kind: KindSystemPaused}
	ErrAlreadyRegistered    = &LedgerError{Kind: KindAlreadyRegistered}
	ErrAlreadyExists        = &LedgerError{Kind: KindAlreadyExists}
	ErrNotFound             = &LedgerError{Kind: KindNotFound}
	ErrInvalidInput         = &LedgerError{Kind: KindInvalidInput}
	ErrInvalidTarget        = &LedgerError{Kind: KindInvalidTarget}
	ErrExpired              = &LedgerError{Kind: KindExpired}
	ErrAlreadyFulfilled     = &LedgerError{Kind: KindAlreadyFulfilled}
	ErrNonTransferable      = &LedgerError{Kind: KindNonTransferable}
	ErrGrantInactive        = &LedgerError{Kind: KindGrantInactive}
	ErrPatientNotRegistered = &LedgerError{Kind: KindPatientNotRegistered}
	ErrInternal             = &LedgerError{Kind: KindInternal}
)

// NewError creates a new ledger error of the given kind
func NewError(kind ErrorKind, code, message string) *LedgerError {
	return &LedgerError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// NewUnauthorizedError creates a new authorization error
func NewUnauthorizedError(code, message string) *LedgerError {
	return NewError(KindUnauthorized, code, message)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *LedgerError {
	return NewError(KindNotFound, code, message)
}

// NewValidationError creates a new invalid input error
func NewValidationError(code, message string, details map[string]interface{}) *LedgerError {
	return &LedgerError{
		Kind:    KindInvalidInput,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *LedgerError {
	return &LedgerError{
		Kind:    KindInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// KindOf returns the kind of a ledger error, or KindInternal for anything else
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindInternal
}

// Common error codes
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeNotAdmin             = "NOT_ADMIN"
	ErrCodeNotOwner             = "NOT_OWNER"
	ErrCodeNotPatient           = "NOT_PATIENT"
	ErrCodeNotActiveDoctor      = "NOT_ACTIVE_DOCTOR"
	ErrCodeNotPharmacist        = "NOT_VERIFIED_PHARMACIST"
	ErrCodeSystemPaused         = "SYSTEM_PAUSED"
	ErrCodeAlreadyRegistered    = "ALREADY_REGISTERED"
	ErrCodeRoleConflict         = "ROLE_CONFLICT"
	ErrCodeAlreadyExists        = "ALREADY_EXISTS"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeLicenseExpired       = "LICENSE_EXPIRED"
	ErrCodeInvalidTarget        = "INVALID_TARGET"
	ErrCodeExpired              = "EXPIRED"
	ErrCodeAlreadyFulfilled     = "ALREADY_FULFILLED"
	ErrCodeNonTransferable      = "NON_TRANSFERABLE"
	ErrCodeGrantInactive        = "GRANT_INACTIVE"
	ErrCodePatientNotRegistered = "PATIENT_NOT_REGISTERED"
	ErrCodeLastAdmin            = "LAST_ADMIN"
	ErrCodePersistFailed        = "PERSIST_FAILED"
	ErrCodeInternal             = "INTERNAL"
)
