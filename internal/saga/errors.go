package saga

import (
	"errors"
	"fmt"
	"strings"
)

// Error is returned by every rejected command.
//
// Errors fall into three categories:
//   - Validation: malformed input (empty ids, zero type, nil preparation)
//   - State: the command does not fit the entity's current transaction
//   - Domain: the participant refuses the preparation
//
// Idempotent no-ops (duplicate or unknown reports) are not errors.
type Error struct {
	// Code identifies the failure.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// EntityID identifies the entity that rejected the command.
	EntityID string

	// TransactionID and TransactionType identify the affected transaction.
	TransactionID   string
	TransactionType TransactionType

	// Err is the underlying cause, usually a domain rejection.
	Err error
}

// ErrorCode categorizes saga errors.
type ErrorCode string

const (
	CodeInvalidArgument        ErrorCode = "INVALID_ARGUMENT"
	CodeInvalidTransaction     ErrorCode = "INVALID_TRANSACTION"
	CodeNotInTransaction       ErrorCode = "NOT_IN_TRANSACTION"
	CodeTransactionMismatch    ErrorCode = "TRANSACTION_MISMATCH"
	CodePreCommitIncomplete    ErrorCode = "PRECOMMIT_INCOMPLETE"
	CodeSelfParticipation      ErrorCode = "SELF_PARTICIPATION"
	CodeAlreadyInTransaction   ErrorCode = "ALREADY_IN_TRANSACTION"
	CodeCorruptHistory         ErrorCode = "CORRUPT_HISTORY"
	CodeUnsupportedPreparation ErrorCode = "UNSUPPORTED_PREPARATION"
	CodePreparationConflict    ErrorCode = "PREPARATION_CONFLICT"
	CodePreparationRejected    ErrorCode = "PREPARATION_REJECTED"
	CodePreparationNotFound    ErrorCode = "PREPARATION_NOT_FOUND"
)

// Category groups error codes.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryState      Category = "state"
	CategoryDomain     Category = "domain"
)

// Category returns the category the code belongs to.
func (c ErrorCode) Category() Category {
	switch c {
	case CodeInvalidArgument, CodeInvalidTransaction:
		return CategoryValidation
	case CodeUnsupportedPreparation, CodePreparationConflict, CodePreparationRejected, CodePreparationNotFound:
		return CategoryDomain
	default:
		return CategoryState
	}
}

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrInvalidArgument        = &Error{Code: CodeInvalidArgument}
	ErrInvalidTransaction     = &Error{Code: CodeInvalidTransaction}
	ErrNotInTransaction       = &Error{Code: CodeNotInTransaction}
	ErrTransactionMismatch    = &Error{Code: CodeTransactionMismatch}
	ErrPreCommitIncomplete    = &Error{Code: CodePreCommitIncomplete}
	ErrSelfParticipation      = &Error{Code: CodeSelfParticipation}
	ErrAlreadyInTransaction   = &Error{Code: CodeAlreadyInTransaction}
	ErrCorruptHistory         = &Error{Code: CodeCorruptHistory}
	ErrUnsupportedPreparation = &Error{Code: CodeUnsupportedPreparation}
	ErrPreparationConflict    = &Error{Code: CodePreparationConflict}
	ErrPreparationRejected    = &Error{Code: CodePreparationRejected}
	ErrPreparationNotFound    = &Error{Code: CodePreparationNotFound}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	var ctx []string
	if e.EntityID != "" {
		ctx = append(ctx, "entity="+e.EntityID)
	}
	if e.TransactionID != "" {
		ctx = append(ctx, "tx="+e.TransactionID)
	}
	if e.TransactionType != NoTransaction {
		ctx = append(ctx, fmt.Sprintf("type=%d", e.TransactionType))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the saga error code carried by err, or "" if err is not a
// saga error.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsDomainError reports whether err is a participant's refusal of a
// preparation, as opposed to a protocol or validation error.
func IsDomainError(err error) bool {
	code := CodeOf(err)
	return code != "" && code.Category() == CategoryDomain
}

func newError(code ErrorCode, entityID string, ref TransactionRef, format string, args ...any) *Error {
	return &Error{
		Code:            code,
		Message:         fmt.Sprintf(format, args...),
		EntityID:        entityID,
		TransactionID:   ref.ID,
		TransactionType: ref.Type,
	}
}
