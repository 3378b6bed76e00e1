package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/repositories"
	"go.uber.org/zap"
)

// CardRepository implements the repositories.CardRepository interface
type CardRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCardRepository creates a new card repository
func NewCardRepository(db *DB, logger *zap.Logger) repositories.CardRepository {
	return &CardRepository{
		db:     db,
		logger: logger,
	}
}

const cardColumns = `id, user_id, balance, creator_id, created_at, updated_at`

// Create inserts a new card
func (r *CardRepository) Create(ctx context.Context, card *models.Card) error {
	query := `
		INSERT INTO cards (id, user_id, balance, creator_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		card.ID,
		card.UserID,
		card.Balance,
		card.CreatorID,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("card %s: %w", card.ID, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create card: %w", err)
	}

	r.logger.Debug("card created", zap.String("id", card.ID))
	return nil
}

// GetByID retrieves a card by ID
func (r *CardRepository) GetByID(ctx context.Context, id string) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetForUpdate retrieves a card with SELECT ... FOR UPDATE. The row lock is
// held until the transaction in ctx commits or rolls back.
func (r *CardRepository) GetForUpdate(ctx context.Context, id string) (*models.Card, error) {
	if _, ok := txFromContext(ctx); !ok {
		return nil, repositories.ErrNoTx
	}
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, id)
}

func (r *CardRepository) get(ctx context.Context, query, id string) (*models.Card, error) {
	executor := GetExecutor(ctx, r.db)
	card := &models.Card{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&card.ID,
		&card.UserID,
		&card.Balance,
		&card.CreatorID,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}

	return card, nil
}

// UpdateBalance sets the card balance
func (r *CardRepository) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	query := `UPDATE cards SET balance = $2, updated_at = $3 WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, balance, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update card balance: %w", err)
	}

	if err := expectOneRow(result, "card", id); err != nil {
		return err
	}

	r.logger.Debug("card balance updated", zap.String("id", id), zap.String("balance", balance.StringFixed(2)))
	return nil
}

// Delete deletes a card and, through the foreign key, its controls
func (r *CardRepository) Delete(ctx context.Context, id string) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}

	if err := expectOneRow(result, "card", id); err != nil {
		return err
	}

	r.logger.Debug("card deleted", zap.String("id", id))
	return nil
}

func expectOneRow(result sql.Result, kind string, id any) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %v: %w", kind, id, repositories.ErrNotFound)
	}
	return nil
}
