package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/upb/card-control/internal/observability"
	"github.com/upb/card-control/middleware"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/services/authorization"
	"github.com/upb/card-control/utils"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// AuthorizationService defines the transaction operations exposed over HTTP
type AuthorizationService interface {
	Process(ctx context.Context) (*authorization.Result, error)
	Authorize(ctx context.Context, principal string, txn *models.Transaction) (*authorization.Result, error)
	Transaction(ctx context.Context, id string) (*models.Transaction, error)
	History(ctx context.Context, cardID string, limit, offset int) ([]*models.Transaction, error)
}

// AuthorizeRequest is a transaction pushed for authorization. It has the
// same shape as the gateway's transaction payload.
type AuthorizeRequest struct {
	ID               string          `json:"id" validate:"required,max=40"`
	Card             string          `json:"card" validate:"required,max=40"`
	Amount           decimal.Decimal `json:"amount"`
	Merchant         string          `json:"merchant" validate:"max=100"`
	MerchantCategory string          `json:"merchant_category" validate:"max=10"`
	Created          time.Time       `json:"created"`
	Updated          time.Time       `json:"updated"`
}

func (req AuthorizeRequest) transaction() *models.Transaction {
	return &models.Transaction{
		ID:               req.ID,
		CardID:           req.Card,
		Amount:           req.Amount,
		Merchant:         req.Merchant,
		MerchantCategory: req.MerchantCategory,
		CreatedAt:        req.Created,
		UpdatedAt:        req.Updated,
	}
}

// TransactionHandler handles transaction authorization HTTP requests
type TransactionHandler struct {
	auth   AuthorizationService
	logger *zap.Logger
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(auth AuthorizationService, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		auth:   auth,
		logger: logger,
	}
}

// HandleProcessStubTransaction handles GET /stub/txn: pull one transaction
// from the gateway and authorize it
func (h *TransactionHandler) HandleProcessStubTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)

	result, err := h.auth.Process(ctx)
	h.writeResult(w, result, err, logger)
}

// HandleAuthorize handles POST /api/v1/transactions/authorize. Only the
// card's creator may push transactions against it.
func (h *TransactionHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)

	var req AuthorizeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}
	txn := req.transaction()
	if !txn.HasValidAmount() {
		_ = utils.WriteBadRequest(w, "Validation failed", map[string]interface{}{
			"amount": "amount must be non-negative with at most 2 decimal places",
		})
		return
	}

	result, err := h.auth.Authorize(ctx, middleware.PrincipalFromContext(ctx), txn)
	h.writeResult(w, result, err, logger)
}

// writeResult answers 200 with a Success or Fail envelope for decided
// transactions; errors mean nothing was recorded
func (h *TransactionHandler) writeResult(w http.ResponseWriter, result *authorization.Result, err error, logger *zap.Logger) {
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if result.Approved {
		err = utils.WriteOK(w, result.Message(), result)
	} else {
		err = utils.WriteFail(w, http.StatusOK, result.Message(), result)
	}
	if err != nil {
		logger.Error("failed to write transaction response", zap.Error(err))
	}
}

// HandleGetTransaction handles GET /api/v1/transactions/{id}
func (h *TransactionHandler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)

	txn, err := h.auth.Transaction(ctx, chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, "", txn); err != nil {
		logger.Error("failed to write transaction response", zap.Error(err))
	}
}

// HandleCardTransactions handles GET /api/v1/card/{card_id}/transactions
func (h *TransactionHandler) HandleCardTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)

	cardID := chi.URLParam(r, "card_id")
	if err := utils.ValidateCardID(cardID); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	query := r.URL.Query()
	limit, err := utils.ParseIntParam(query.Get("limit"), "limit", defaultHistoryLimit, 1, maxHistoryLimit)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	offset, err := utils.ParseIntParam(query.Get("offset"), "offset", 0, 0, 1<<31-1)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	txns, err := h.auth.History(ctx, cardID, limit, offset)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, "", txns); err != nil {
		logger.Error("failed to write transactions response", zap.Error(err))
	}
}
