package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/card-control/models"
	"github.com/upb/card-control/repositories"
	"go.uber.org/zap"
)

// TransactionRepository implements the repositories.TransactionRepository interface
type TransactionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new transaction record repository
func NewTransactionRepository(db *DB, logger *zap.Logger) repositories.TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

const transactionColumns = `id, card_id, amount, merchant, merchant_category, status, reason, created_at, updated_at`

// Create inserts a transaction record
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		txn.ID,
		txn.CardID,
		txn.Amount,
		txn.Merchant,
		txn.MerchantCategory,
		string(txn.Status),
		txn.Reason,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction %s: %w", txn.ID, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	r.logger.Debug("transaction recorded",
		zap.String("id", txn.ID),
		zap.String("card_id", txn.CardID),
		zap.String("status", string(txn.Status)),
	)
	return nil
}

// GetByID retrieves a transaction record by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	txn, err := scanTransaction(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// ListByCard retrieves a card's transaction records, newest first
func (r *TransactionRepository) ListByCard(ctx context.Context, cardID string, limit, offset int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE card_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, cardID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		txn    models.Transaction
		status string
		reason sql.NullString
	)
	if err := row.Scan(
		&txn.ID,
		&txn.CardID,
		&txn.Amount,
		&txn.Merchant,
		&txn.MerchantCategory,
		&status,
		&reason,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	); err != nil {
		return nil, err
	}

	txn.Status = models.TransactionStatus(status)
	if reason.Valid {
		txn.Reason = &reason.String
	}
	return &txn, nil
}
