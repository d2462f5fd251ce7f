package billing

import "github.com/ferdypruis/go-luhn"

const (
	StatusPending = "PENDING"
	StatusSettled = "SETTLED"
	StatusVoided  = "VOIDED"
)

type GetPurchaseRequest struct {
	Receipt string `json:"receipt"`
}

type GetPurchaseResponse struct {
	Receipt string `json:"receipt"`
	Status  string `json:"status"`
	Credits int64  `json:"credits,omitempty"`
}

type ListSettledResponse struct {
	Purchases []SettledPurchase `json:"purchases"`
}

type SettledPurchase struct {
	Receipt   string `json:"receipt"`
	AccountID string `json:"account_id"`
	Credits   int64  `json:"credits"`
}

// ValidReceipt reports whether a provider receipt number checks out. The
// provider issues luhn-valid receipt numbers.
func ValidReceipt(receipt string) bool {
	return receipt != "" && luhn.Valid(receipt)
}
