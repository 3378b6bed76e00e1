package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/repositories"
	"go.uber.org/zap"
)

// ControlRepository implements the repositories.ControlRepository interface
type ControlRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewControlRepository creates a new control repository
func NewControlRepository(db *DB, logger *zap.Logger) repositories.ControlRepository {
	return &ControlRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new control and sets its ID
func (r *ControlRepository) Create(ctx context.Context, control *models.Control) error {
	query := `
		INSERT INTO controls (card_id, control_name, control_value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		control.CardID,
		control.Name,
		control.Value,
		control.CreatedAt,
		control.UpdatedAt,
	).Scan(&control.ID)
	if err != nil {
		return fmt.Errorf("failed to create control: %w", err)
	}

	r.logger.Debug("control created",
		zap.Int64("id", control.ID),
		zap.String("card_id", control.CardID),
		zap.String("name", control.Name),
	)
	return nil
}

// GetByID retrieves a control by ID
func (r *ControlRepository) GetByID(ctx context.Context, id int64) (*models.Control, error) {
	query := `
		SELECT id, card_id, control_name, control_value, created_at, updated_at
		FROM controls
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	control := &models.Control{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&control.ID,
		&control.CardID,
		&control.Name,
		&control.Value,
		&control.CreatedAt,
		&control.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("control %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get control: %w", err)
	}

	return control, nil
}

// Delete deletes a control
func (r *ControlRepository) Delete(ctx context.Context, id int64) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM controls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete control: %w", err)
	}

	if err := expectOneRow(result, "control", id); err != nil {
		return err
	}

	r.logger.Debug("control deleted", zap.Int64("id", id))
	return nil
}

// ListByCard retrieves all controls for a card ordered by ID
func (r *ControlRepository) ListByCard(ctx context.Context, cardID string) ([]*models.Control, error) {
	query := `
		SELECT id, card_id, control_name, control_value, created_at, updated_at
		FROM controls
		WHERE card_id = $1
		ORDER BY id
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list controls: %w", err)
	}
	defer rows.Close()

	var controls []*models.Control
	for rows.Next() {
		control := &models.Control{}
		if err := rows.Scan(
			&control.ID,
			&control.CardID,
			&control.Name,
			&control.Value,
			&control.CreatedAt,
			&control.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan control: %w", err)
		}
		controls = append(controls, control)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating controls: %w", err)
	}

	return controls, nil
}

// CountByName counts the controls with the given name on a card
func (r *ControlRepository) CountByName(ctx context.Context, cardID, name string) (int, error) {
	query := `SELECT COUNT(*) FROM controls WHERE card_id = $1 AND control_name = $2`

	var count int
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, cardID, name).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count controls: %w", err)
	}
	return count, nil
}

// GroupByCard returns the card's control values grouped by name
func (r *ControlRepository) GroupByCard(ctx context.Context, cardID string) (map[string][]string, error) {
	query := `
		SELECT control_name, array_agg(control_value ORDER BY id)
		FROM controls
		WHERE card_id = $1
		GROUP BY control_name
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to group controls: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string][]string)
	for rows.Next() {
		var (
			name   string
			values []string
		)
		if err := rows.Scan(&name, pq.Array(&values)); err != nil {
			return nil, fmt.Errorf("failed to scan grouped controls: %w", err)
		}
		grouped[name] = values
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grouped controls: %w", err)
	}

	return grouped, nil
}
