package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the terminal outcome of an authorization attempt
type TransactionStatus string

const (
	TransactionApproved TransactionStatus = "A"
	TransactionRejected TransactionStatus = "R"
)

// MaxReasonLength bounds the stored rejection reason.
const MaxReasonLength = 100

// AmountPlaces is the number of decimal places money is stored with.
const AmountPlaces = 2

// Transaction is the immutable record of one authorization attempt. ID,
// timestamps and amounts are the values reported by the card gateway.
type Transaction struct {
	ID               string            `json:"id" db:"id"`
	CardID           string            `json:"card" db:"card_id"`
	Amount           decimal.Decimal   `json:"amount" db:"amount"`
	Merchant         string            `json:"merchant" db:"merchant"`
	MerchantCategory string            `json:"merchant_category" db:"merchant_category"`
	Status           TransactionStatus `json:"status" db:"status"`
	Reason           *string           `json:"reason,omitempty" db:"reason"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Transaction model
func (Transaction) TableName() string {
	return "transactions"
}

// Approve marks the transaction approved and clears any reason.
func (t *Transaction) Approve() {
	t.Status = TransactionApproved
	t.Reason = nil
}

// Reject marks the transaction rejected. Reasons longer than
// MaxReasonLength are truncated.
func (t *Transaction) Reject(reason string) {
	if r := []rune(reason); len(r) > MaxReasonLength {
		reason = string(r[:MaxReasonLength])
	}
	t.Status = TransactionRejected
	t.Reason = &reason
}

// HasValidAmount reports whether Amount is non-negative and has no digits
// beyond AmountPlaces. Trailing zeros are allowed.
func (t *Transaction) HasValidAmount() bool {
	return !t.Amount.IsNegative() && t.Amount.Equal(t.Amount.Truncate(AmountPlaces))
}

// IsApproved reports whether the transaction was approved
func (t *Transaction) IsApproved() bool {
	return t.Status == TransactionApproved
}

// ComparisonFields returns the transaction as the flat field map card
// controls are evaluated against.
func (t *Transaction) ComparisonFields() map[string]string {
	return map[string]string{
		"id":                t.ID,
		"card":              t.CardID,
		"amount":            t.Amount.String(),
		"merchant":          t.Merchant,
		"merchant_category": t.MerchantCategory,
	}
}
