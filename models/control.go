package models

import "time"

// Control is one configured rule on a card. A card may hold several rows for
// the same name when the control's definition allows it.
type Control struct {
	ID        int64     `json:"id" db:"id"`
	CardID    string    `json:"card" db:"card_id"`
	Name      string    `json:"control_name" db:"control_name"`
	Value     string    `json:"control_value" db:"control_value"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Control model
func (Control) TableName() string {
	return "controls"
}

// NewControl creates a new Control instance
func NewControl(cardID, name, value string) *Control {
	now := time.Now().UTC()
	return &Control{
		CardID:    cardID,
		Name:      name,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
