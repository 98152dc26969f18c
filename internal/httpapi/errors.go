package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/saga"
	"github.com/roach88/eventual2pc/internal/store"
)

// httpError is a transport-level failure with a fixed status.
type httpError struct {
	status int
	code   string
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func errBadRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, code: "BAD_REQUEST", msg: fmt.Sprintf(format, args...)}
}

func errNotFound(format string, args ...any) error {
	return &httpError{status: http.StatusNotFound, code: "NOT_FOUND", msg: fmt.Sprintf(format, args...)}
}

// classify maps an error to an HTTP status and a machine-readable code.
// Bank sentinels are checked before saga categories because a saga error
// may wrap a bank refusal.
func classify(err error) (int, string) {
	var he *httpError
	if errors.As(err, &he) {
		return he.status, he.code
	}

	switch {
	case errors.Is(err, bank.ErrAccountExists), errors.Is(err, bank.ErrTransferExists), errors.Is(err, bank.ErrFreezeExists):
		return http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, bank.ErrInvalidAmount), errors.Is(err, bank.ErrUnknownKind):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, bank.ErrAccountNotOpen), errors.Is(err, bank.ErrUnknownStream):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, "VERSION_CONFLICT"
	}

	if code := saga.CodeOf(err); code != "" {
		switch code.Category() {
		case saga.CategoryValidation:
			return http.StatusBadRequest, string(code)
		case saga.CategoryDomain:
			return http.StatusUnprocessableEntity, string(code)
		default:
			return http.StatusConflict, string(code)
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}
