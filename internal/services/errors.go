package services

import (
	"errors"
)

// Failure modes of the approval and dividend engines. NotPending and
// InsufficientFunds are recoverable and shown to the admin as-is;
// StoreConflict is retried a bounded number of times before surfacing.
var (
	ErrNotPending        = errors.New("transaction is not pending")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrNotFound          = errors.New("record not found")
	ErrInvalidRate       = errors.New("dividend rate must be greater than zero")
	ErrStoreConflict     = errors.New("concurrent modification detected")
)
