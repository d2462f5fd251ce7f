package model

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is a single signed ledger entry. Once committed it is never
// updated or deleted; corrections are new entries.
type Transaction struct {
	ID             uuid.UUID `json:"id"`
	AccountID      uuid.UUID `json:"-"`
	Amount         int64     `json:"amount"`
	Kind           Kind      `json:"kind"`
	Source         Source    `json:"source"`
	Description    string    `json:"description"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Signed returns the amount with the sign implied by the kind.
func (t *Transaction) Signed() int64 {
	if t.Kind == KindDebit {
		return -t.Amount
	}
	return t.Amount
}

type Kind string

const (
	KindCredit Kind = "CREDIT"
	KindDebit  Kind = "DEBIT"
)

func (k Kind) Valid() bool {
	return k == KindCredit || k == KindDebit
}

// Source is the reason tag of a transaction.
type Source string

const (
	SourcePurchase    Source = "purchase"
	SourceConsumption Source = "consumption"
	SourceBonus       Source = "bonus"
	SourceRefund      Source = "refund"
	SourceCorrection  Source = "admin_correction"
)

func (s Source) Valid() bool {
	switch s {
	case SourcePurchase, SourceConsumption, SourceBonus, SourceRefund, SourceCorrection:
		return true
	}
	return false
}
