package bank

import "errors"

// Domain errors. Admission failures are wrapped by the saga layer as
// PREPARATION_REJECTED, so callers match them with errors.Is.
var (
	ErrAccountNotOpen    = errors.New("account is not open")
	ErrAccountExists     = errors.New("account already opened")
	ErrAccountFrozen     = errors.New("account is frozen")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrTransferExists    = errors.New("transfer already requested")
	ErrFreezeExists      = errors.New("freeze already requested")
	ErrUnknownStream     = errors.New("unknown stream type")
	ErrUnknownKind       = errors.New("transaction kind not in catalog")
	ErrWrongEntity       = errors.New("command sent to the wrong entity")
)
