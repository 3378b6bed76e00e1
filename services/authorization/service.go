// Package authorization runs the transaction authorization workflow: evaluate
// the card's controls, then check and debit the balance under the card lock,
// recording exactly one transaction row per attempt.
package authorization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/card-control/internal/observability"
	"github.com/upb/card-control/internal/policy"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/repositories"
	"github.com/upb/card-control/services"
	"go.uber.org/zap"
)

// TransactionSource hands out transactions to authorize
type TransactionSource interface {
	FetchTransaction(ctx context.Context) (*models.Transaction, error)
}

// ControlsReader returns a card's controls grouped by name
type ControlsReader interface {
	Get(ctx context.Context, cardID string) (policy.GroupedControls, error)
}

// CardCache is told when a card's balance changed
type CardCache interface {
	Invalidate(ctx context.Context, cardID string)
}

// Result is the outcome of one authorization attempt. Rejection is set when
// the transaction was recorded with status R.
type Result struct {
	Transaction *models.Transaction `json:"transaction"`
	Approved    bool                `json:"approved"`
	Rejection   *policy.Rejection   `json:"rejection,omitempty"`
}

// Message is the user-facing summary of the result
func (r *Result) Message() string {
	if r.Approved {
		return services.MsgTxnApproved
	}
	if r.Rejection != nil {
		return r.Rejection.Message
	}
	return ""
}

// Service authorizes transactions against card controls and balances
type Service struct {
	source       TransactionSource
	controls     ControlsReader
	engine       *policy.Engine
	cards        repositories.CardRepository
	transactions repositories.TransactionRepository
	txMgr        repositories.TxManager
	cardCache    CardCache
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewService creates an authorization service. cardCache and metrics may be nil.
func NewService(
	source TransactionSource,
	controls ControlsReader,
	engine *policy.Engine,
	repos *repositories.Repositories,
	cardCache CardCache,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		source:       source,
		controls:     controls,
		engine:       engine,
		cards:        repos.Cards,
		transactions: repos.Transactions,
		txMgr:        repos.TxManager,
		cardCache:    cardCache,
		metrics:      metrics,
		logger:       logger,
	}
}

// Process fetches the next transaction from the source and authorizes it.
// The source is trusted, so no caller ownership is checked. A fetch failure
// aborts the attempt without recording anything.
func (s *Service) Process(ctx context.Context) (*Result, error) {
	txn, err := s.source.FetchTransaction(ctx)
	if err != nil {
		s.metrics.RecordAuthorization(observability.OutcomeError)
		s.logger.Error("transaction could not be fetched", zap.Error(err))
		return nil, services.Wrap(services.ErrTxnFetch, err)
	}
	return s.authorize(ctx, txn)
}

// Authorize decides a transaction pushed by principal, who must have
// registered the card. Ownership failures and unknown cards are returned as
// errors and nothing is recorded.
func (s *Service) Authorize(ctx context.Context, principal string, txn *models.Transaction) (*Result, error) {
	if principal == "" {
		return nil, services.ErrUnauthorized
	}
	if err := validateTransaction(txn); err != nil {
		return nil, err
	}

	card, err := s.cards.GetByID(ctx, txn.CardID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.Wrap(services.ErrCardNotFound, err)
		}
		return nil, services.WrapInternal("failed to load card", err)
	}
	if !card.OwnedBy(principal) {
		s.logger.Warn("transaction pushed by non-owner",
			zap.String("transaction_id", txn.ID),
			zap.String("card_id", txn.CardID),
			zap.String("principal", principal))
		return nil, services.ErrForbidden
	}

	return s.authorize(ctx, txn)
}

func validateTransaction(txn *models.Transaction) error {
	if txn == nil || txn.ID == "" || txn.CardID == "" {
		return services.ErrInvalidInput
	}
	if !txn.HasValidAmount() {
		return services.Wrap(services.ErrInvalidInput, nil).
			WithDetail("amount", fmt.Sprintf("amount must be non-negative with at most %d decimal places", models.AmountPlaces))
	}
	return nil
}

// authorize decides a transaction and records it. Rejections are returned as
// a Result, not an error; errors mean nothing was recorded.
func (s *Service) authorize(ctx context.Context, txn *models.Transaction) (*Result, error) {
	if err := validateTransaction(txn); err != nil {
		s.metrics.RecordAuthorization(observability.OutcomeError)
		return nil, err
	}
	logger := s.logger.With(
		zap.String("transaction_id", txn.ID),
		zap.String("card_id", txn.CardID),
		zap.String("amount", txn.Amount.String()))

	now := time.Now().UTC()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	if txn.UpdatedAt.IsZero() {
		txn.UpdatedAt = now
	}

	grouped, err := s.controls.Get(ctx, txn.CardID)
	if err != nil {
		s.metrics.RecordAuthorization(observability.OutcomeError)
		return nil, err
	}

	start := time.Now()
	decision, err := s.engine.Evaluate(txn.ComparisonFields(), grouped)
	s.metrics.ObserveEvaluation(time.Since(start))
	if err != nil {
		s.metrics.RecordAuthorization(observability.OutcomeError)
		logger.Error("control evaluation failed", zap.Error(err))
		return nil, services.Wrap(services.ErrUnknownControl, err)
	}
	if !decision.Allowed {
		logger.Info("transaction rejected by control",
			zap.String("failed_control", decision.Rejection.FailedControl),
			zap.String("reason", decision.Rejection.Message))
		return s.reject(ctx, txn, *decision.Rejection, observability.OutcomeRejectedControl)
	}

	approved, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context) (*models.Transaction, error) {
		card, err := s.cards.GetForUpdate(ctx, txn.CardID)
		if err != nil {
			return nil, err
		}
		if !card.CanDebit(txn.Amount) {
			return nil, services.ErrInsufficientBalance
		}
		if err := s.cards.UpdateBalance(ctx, card.ID, card.Balance.Sub(txn.Amount)); err != nil {
			return nil, err
		}

		record := *txn
		record.Approve()
		if err := s.transactions.Create(ctx, &record); err != nil {
			return nil, err
		}
		return &record, nil
	})

	switch {
	case err == nil:
		if s.cardCache != nil {
			s.cardCache.Invalidate(ctx, txn.CardID)
		}
		s.metrics.RecordAuthorization(observability.OutcomeApproved)
		logger.Info("transaction approved")
		return &Result{Transaction: approved, Approved: true}, nil

	case errors.Is(err, repositories.ErrNotFound):
		logger.Info("card not found, rejecting transaction")
		return s.reject(ctx, txn, policy.Rejection{Message: services.MsgCardDetailsNotFound},
			observability.OutcomeRejectedCardMissing)

	case services.IsInsufficientFundsError(err):
		logger.Info("insufficient balance, rejecting transaction")
		return s.reject(ctx, txn, policy.Rejection{Message: services.MsgInsufficientBalance},
			observability.OutcomeRejectedBalance)

	case errors.Is(err, repositories.ErrDuplicate):
		s.metrics.RecordAuthorization(observability.OutcomeError)
		logger.Warn("transaction already recorded")
		return nil, services.Wrap(services.ErrDuplicateTransaction, err)

	default:
		s.metrics.RecordAuthorization(observability.OutcomeError)
		logger.Error("balance update failed", zap.Error(err))
		return nil, services.Wrap(services.ErrTransactionFailed, err)
	}
}

// reject records txn with status R and reason
func (s *Service) reject(ctx context.Context, txn *models.Transaction, rejection policy.Rejection, outcome string) (*Result, error) {
	record := *txn
	record.Reject(rejection.Message)

	if err := s.transactions.Create(ctx, &record); err != nil {
		s.metrics.RecordAuthorization(observability.OutcomeError)
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.Wrap(services.ErrDuplicateTransaction, err)
		}
		return nil, services.WrapInternal("failed to record transaction", err)
	}

	s.metrics.RecordAuthorization(outcome)
	return &Result{Transaction: &record, Rejection: &rejection}, nil
}

// Transaction returns a recorded transaction
func (s *Service) Transaction(ctx context.Context, id string) (*models.Transaction, error) {
	txn, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.Wrap(services.ErrTransactionNotFound, err)
		}
		return nil, services.WrapInternal("failed to load transaction", err)
	}
	return txn, nil
}

// History returns a card's recorded transactions, newest first
func (s *Service) History(ctx context.Context, cardID string, limit, offset int) ([]*models.Transaction, error) {
	txns, err := s.transactions.ListByCard(ctx, cardID, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list transactions", err)
	}
	return txns, nil
}
