package model

import (
	"github.com/google/uuid"
)

// Account is a professional account. Balance is a materialized cache of the
// account's ledger, updated in the same storage transaction as every append.
type Account struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"-"`
	Balance  int64     `json:"-"`
}
