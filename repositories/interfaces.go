package repositories

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/upb/card-control/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique key.
	ErrDuplicate = errors.New("duplicate record")
	// ErrNoTx is returned by locking reads called outside InTransaction.
	ErrNoTx = errors.New("operation requires a transaction")
)

// TxManager manages database transactions
type TxManager interface {
	// InTransaction executes fn within a transaction carried by the context
	// passed to fn. Commits if fn succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CardRepository handles card data operations
type CardRepository interface {
	// Create inserts a new card
	Create(ctx context.Context, card *models.Card) error

	// GetByID retrieves a card by ID
	GetByID(ctx context.Context, id string) (*models.Card, error)

	// GetForUpdate retrieves a card and holds an exclusive lock on it until
	// the surrounding transaction ends. Must run inside InTransaction.
	GetForUpdate(ctx context.Context, id string) (*models.Card, error)

	// UpdateBalance sets the card balance
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error

	// Delete deletes a card and its controls
	Delete(ctx context.Context, id string) error
}

// ControlRepository handles card control data operations
type ControlRepository interface {
	// Create inserts a new control and sets its ID
	Create(ctx context.Context, control *models.Control) error

	// GetByID retrieves a control by ID
	GetByID(ctx context.Context, id int64) (*models.Control, error)

	// Delete deletes a control
	Delete(ctx context.Context, id int64) error

	// ListByCard retrieves all controls for a card ordered by ID
	ListByCard(ctx context.Context, cardID string) ([]*models.Control, error)

	// CountByName counts the controls with the given name on a card
	CountByName(ctx context.Context, cardID, name string) (int, error)

	// GroupByCard returns the card's control values grouped by name, each
	// list in insertion order
	GroupByCard(ctx context.Context, cardID string) (map[string][]string, error)
}

// TransactionRepository handles transaction record operations
type TransactionRepository interface {
	// Create inserts a transaction record. Returns ErrDuplicate when the ID
	// was already recorded.
	Create(ctx context.Context, txn *models.Transaction) error

	// GetByID retrieves a transaction record by ID
	GetByID(ctx context.Context, id string) (*models.Transaction, error)

	// ListByCard retrieves a card's transaction records, newest first
	ListByCard(ctx context.Context, cardID string, limit, offset int) ([]*models.Transaction, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Cards        CardRepository
	Controls     ControlRepository
	Transactions TransactionRepository
	TxManager    TxManager
}
