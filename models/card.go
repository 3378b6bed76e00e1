package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Card is a payment card registered with the control plane. Balance is only
// changed by the authorization workflow while the card row is locked.
type Card struct {
	ID        string          `json:"id" db:"id"`
	UserID    int64           `json:"user" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatorID string          `json:"creator" db:"creator_id"`
	CreatedAt time.Time       `json:"created" db:"created_at"`
	UpdatedAt time.Time       `json:"updated" db:"updated_at"`
}

// TableName returns the table name for the Card model
func (Card) TableName() string {
	return "cards"
}

// NewCard creates a new Card instance
func NewCard(id string, userID int64, balance decimal.Decimal, creatorID string) *Card {
	now := time.Now().UTC()
	return &Card{
		ID:        id,
		UserID:    userID,
		Balance:   balance,
		CreatorID: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// OwnedBy reports whether principal registered the card.
func (c *Card) OwnedBy(principal string) bool {
	return principal != "" && c.CreatorID == principal
}

// CanDebit reports whether the balance covers amount.
func (c *Card) CanDebit(amount decimal.Decimal) bool {
	return !amount.IsNegative() && c.Balance.GreaterThanOrEqual(amount)
}
