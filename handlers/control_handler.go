package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/upb/card-control/internal/observability"
	"github.com/upb/card-control/internal/policy"
	"github.com/upb/card-control/middleware"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/services"
	"github.com/upb/card-control/services/controls"
	"github.com/upb/card-control/utils"
	"go.uber.org/zap"
)

// ControlService defines the control operations exposed over HTTP
type ControlService interface {
	Create(ctx context.Context, principal, cardID string, req controls.CreateRequest) (*models.Control, error)
	Delete(ctx context.Context, principal, cardID string, controlID int64) error
	List(ctx context.Context, cardID string) ([]*models.Control, error)
	Definitions() map[string]policy.Definition
}

// ControlHandler handles card control HTTP requests
type ControlHandler struct {
	controls ControlService
	logger   *zap.Logger
}

// NewControlHandler creates a new ControlHandler
func NewControlHandler(controls ControlService, logger *zap.Logger) *ControlHandler {
	return &ControlHandler{
		controls: controls,
		logger:   logger,
	}
}

// HandleListControls handles GET /api/v1/card/{card_id}/control
func (h *ControlHandler) HandleListControls(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)

	cardID, ok := h.cardID(w, r)
	if !ok {
		return
	}

	list, err := h.controls.List(ctx, cardID)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Debug("controls listed", zap.String("card_id", cardID), zap.Int("count", len(list)))
	if err := utils.WriteOK(w, "", list); err != nil {
		logger.Error("failed to write controls response", zap.Error(err))
	}
}

// HandleCreateControl handles POST /api/v1/card/{card_id}/control
func (h *ControlHandler) HandleCreateControl(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)

	cardID, ok := h.cardID(w, r)
	if !ok {
		return
	}

	var req controls.CreateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	control, err := h.controls.Create(ctx, middleware.PrincipalFromContext(ctx), cardID, req)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteCreated(w, services.MsgControlCreationSuccess, control); err != nil {
		logger.Error("failed to write control response", zap.Error(err))
	}
}

// HandleDeleteControl handles DELETE /api/v1/card/{card_id}/control/{id}
func (h *ControlHandler) HandleDeleteControl(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)

	cardID, ok := h.cardID(w, r)
	if !ok {
		return
	}
	controlID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || controlID <= 0 {
		_ = utils.WriteBadRequest(w, "Invalid control id", nil)
		return
	}

	if err := h.controls.Delete(ctx, middleware.PrincipalFromContext(ctx), cardID, controlID); err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	utils.WriteNoContent(w)
}

// HandleListDefinitions handles GET /api/v1/controls/definitions
func (h *ControlHandler) HandleListDefinitions(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, "", h.controls.Definitions()); err != nil {
		h.logger.Error("failed to write definitions response", zap.Error(err))
	}
}

func (h *ControlHandler) cardID(w http.ResponseWriter, r *http.Request) (string, bool) {
	cardID := chi.URLParam(r, "card_id")
	if err := utils.ValidateCardID(cardID); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return "", false
	}
	return cardID, true
}
