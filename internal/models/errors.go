package models

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable, machine-readable identifier every engine-level
// failure maps to. The transport layer owns status-code mapping.
type ErrorCode string

const (
	// Validation
	CodeInvalidMessageTarget ErrorCode = "INVALID_MESSAGE_TARGET"
	CodeSelfReferential      ErrorCode = "SELF_REFERENTIAL"
	CodeValidationFailed     ErrorCode = "VALIDATION_FAILED"

	// Conflict
	CodeDuplicatePending ErrorCode = "DUPLICATE_PENDING"
	CodeAlreadyResolved  ErrorCode = "ALREADY_RESOLVED"
	CodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	CodeTripFull         ErrorCode = "TRIP_FULL"
	CodeAlreadyPassenger ErrorCode = "ALREADY_PASSENGER"
	CodeScheduleConflict ErrorCode = "SCHEDULE_CONFLICT"
	CodeVersionConflict  ErrorCode = "VERSION_CONFLICT"
	CodeChatClosed       ErrorCode = "CHAT_CLOSED"

	// NotFound
	CodeNotFound ErrorCode = "NOT_FOUND"

	// Authorization
	CodeNotAuthorized     ErrorCode = "NOT_AUTHORIZED"
	CodeCannotRemoveDriver ErrorCode = "CANNOT_REMOVE_DRIVER"

	// State machine
	CodeInvalidTransition           ErrorCode = "INVALID_TRANSITION"
	CodeTripNotJoinable             ErrorCode = "TRIP_NOT_JOINABLE"
	CodeRequiresConfirmedPassenger  ErrorCode = "REQUIRES_CONFIRMED_PASSENGER"
	CodePendingRequestsExist        ErrorCode = "PENDING_REQUESTS_EXIST"

	// Dependency failure
	CodePaymentFailed     ErrorCode = "PAYMENT_FAILED"
	CodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
)

// DomainError couples a stable code with a human-readable reason.
type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is lets sentinel comparisons match on code, so wrapped domain errors
// still satisfy errors.Is against the sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// CodeOf extracts the stable code from err, or empty when err is not a
// domain error.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

var (
	ErrInvalidMessageTarget = NewDomainError(CodeInvalidMessageTarget, "exactly one of recipient_user or recipient_trip must be set")
	ErrSelfReferential      = NewDomainError(CodeSelfReferential, "sender and receiver must differ")

	ErrDuplicatePending = NewDomainError(CodeDuplicatePending, "an unresolved request for this tuple already exists")
	ErrAlreadyResolved  = NewDomainError(CodeAlreadyResolved, "request has already been resolved")
	ErrChatExists       = NewDomainError(CodeAlreadyExists, "chat already exists")
	ErrFriendshipExists = NewDomainError(CodeAlreadyExists, "friendship already exists")
	ErrTripFull         = NewDomainError(CodeTripFull, "trip has no seats available")
	ErrAlreadyPassenger = NewDomainError(CodeAlreadyPassenger, "user already has a passenger entry on this trip")
	ErrVersionConflict  = NewDomainError(CodeVersionConflict, "document was modified concurrently")
	ErrChatClosed       = NewDomainError(CodeChatClosed, "chat is closed and no longer accepts messages")

	ErrChatNotFound      = NewDomainError(CodeNotFound, "chat not found")
	ErrGroupChatNotFound = NewDomainError(CodeNotFound, "group chat not found for trip")
	ErrEntryNotFound     = NewDomainError(CodeNotFound, "chat entry not found")
	ErrMessageNotFound   = NewDomainError(CodeNotFound, "pending message not found")
	ErrTripNotFound      = NewDomainError(CodeNotFound, "trip not found")
	ErrRequestNotFound   = NewDomainError(CodeNotFound, "request not found")
	ErrUserNotFound      = NewDomainError(CodeNotFound, "user not found")
	ErrCardNotFound      = NewDomainError(CodeNotFound, "card not found")

	ErrNotAuthorized      = NewDomainError(CodeNotAuthorized, "actor is not permitted to perform this action")
	ErrCannotRemoveDriver = NewDomainError(CodeCannotRemoveDriver, "the driver cannot be removed from a trip chat")

	ErrInvalidTransition          = NewDomainError(CodeInvalidTransition, "illegal trip state transition")
	ErrTripNotJoinable            = NewDomainError(CodeTripNotJoinable, "trip is not accepting passengers")
	ErrRequiresConfirmedPassenger = NewDomainError(CodeRequiresConfirmedPassenger, "trip needs at least one confirmed passenger")
	ErrPendingRequestsExist       = NewDomainError(CodePendingRequestsExist, "trip has unresolved join requests")

	ErrInsufficientFunds = NewDomainError(CodeInsufficientFunds, "wallet balance is insufficient")
)

// NewScheduleConflictError names the trip the new schedule collides with.
func NewScheduleConflictError(conflictingTripID string) *DomainError {
	return &DomainError{
		Code:    CodeScheduleConflict,
		Message: fmt.Sprintf("schedule conflicts with trip %s", conflictingTripID),
	}
}

// NewPaymentError wraps a gateway/wallet failure so the accept path can
// surface it without partial state.
func NewPaymentError(err error) *DomainError {
	return &DomainError{
		Code:    CodePaymentFailed,
		Message: "trip payment failed",
		Err:     err,
	}
}
