package models

import (
	"time"
)

type LedgerDirection string
type PaymentMethod string

const (
	LedgerDebit  LedgerDirection = "debit"
	LedgerCredit LedgerDirection = "credit"

	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodCard   PaymentMethod = "card"
)

// LedgerEntry records one side of a settled trip payment in the internal
// ledger. Entries are append-only.
type LedgerEntry struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	TripID        string          `json:"trip_id" db:"trip_id"`
	Direction     LedgerDirection `json:"direction" db:"direction"`
	Amount        float64         `json:"amount" db:"amount"`
	Currency      string          `json:"currency" db:"currency"`
	Method        PaymentMethod   `json:"method" db:"method"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
