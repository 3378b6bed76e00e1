package handlers

import (
	"context"
	"net/http"

	"github.com/upb/card-control/internal/observability"
	"github.com/upb/card-control/middleware"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/services"
	"github.com/upb/card-control/utils"
	"go.uber.org/zap"
)

// CardService defines the card operations exposed over HTTP
type CardService interface {
	// Create registers a new card for principal
	Create(ctx context.Context, principal string) (*models.Card, error)
}

// CardHandler handles card-related HTTP requests
type CardHandler struct {
	cards  CardService
	logger *zap.Logger
}

// NewCardHandler creates a new CardHandler
func NewCardHandler(cards CardService, logger *zap.Logger) *CardHandler {
	return &CardHandler{
		cards:  cards,
		logger: logger,
	}
}

// HandleCreateCard handles POST /stub/card
func (h *CardHandler) HandleCreateCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)

	principal := middleware.PrincipalFromContext(ctx)
	if principal == "" {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	card, err := h.cards.Create(ctx, principal)
	if err != nil {
		// the gateway is the only way to issue cards
		if services.IsExternalError(err) {
			logger.Error("card creation failed", zap.Error(err))
			_ = utils.WriteError(w, http.StatusServiceUnavailable, services.MsgCardCreationFailed, nil)
			return
		}
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteCreated(w, services.MsgCardCreationSuccess, card); err != nil {
		logger.Error("failed to write card response", zap.Error(err))
	}
}
