// Package apperr defines the sentinel errors shared across the application.
package apperr

import "github.com/pkg/errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidAmount rejects non-positive transaction amounts before any
	// storage access.
	ErrInvalidAmount = errors.New("amount must be a positive integer")

	// ErrInsufficientBalance rejects a debit that would take the balance
	// below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateKey marks a retried request that matched a committed
	// transaction by idempotency key. Callers treat it as a replay of the
	// prior result, not a failure.
	ErrDuplicateKey = errors.New("duplicate idempotency key")

	// ErrActionFailed marks a gated action that failed after its debit was
	// committed; a compensating credit has already been recorded.
	ErrActionFailed = errors.New("action failed")

	// ErrStorageUnavailable marks an append that did not complete within
	// its deadline. No partial transaction is visible; retrying with the
	// same idempotency key is safe.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
