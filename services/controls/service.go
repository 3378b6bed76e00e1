// Package controls manages the spending controls attached to cards and the
// cached grouped view the authorization workflow evaluates.
package controls

import (
	"context"
	"errors"
	"strings"

	"github.com/upb/card-control/internal/policy"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/repositories"
	"github.com/upb/card-control/services"
	"go.uber.org/zap"
)

// CardReader looks cards up, typically through the card cache
type CardReader interface {
	Get(ctx context.Context, cardID string) (*models.Card, error)
}

// CreateRequest is the payload for adding a control to a card
type CreateRequest struct {
	Name  string `json:"control_name" validate:"required,max=10"`
	Value string `json:"control_value" validate:"required,max=40"`
}

// Service handles control writes and listing
type Service struct {
	cards    CardReader
	cardRepo repositories.CardRepository
	repo     repositories.ControlRepository
	txMgr    repositories.TxManager
	registry *policy.Registry
	view     *View
	logger   *zap.Logger
}

// NewService creates a control service
func NewService(
	cards CardReader,
	repos *repositories.Repositories,
	registry *policy.Registry,
	view *View,
	logger *zap.Logger,
) *Service {
	return &Service{
		cards:    cards,
		cardRepo: repos.Cards,
		repo:     repos.Controls,
		txMgr:    repos.TxManager,
		registry: registry,
		view:     view,
		logger:   logger,
	}
}

// Create validates and stores a control on a card owned by principal. The
// control name is case-insensitive and stored upper-cased.
func (s *Service) Create(ctx context.Context, principal, cardID string, req CreateRequest) (*models.Control, error) {
	name := strings.ToUpper(strings.TrimSpace(req.Name))
	value := strings.TrimSpace(req.Value)
	logger := s.logger.With(zap.String("card_id", cardID), zap.String("control_name", name))

	card, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !card.OwnedBy(principal) {
		logger.Warn("control creation by non-owner", zap.String("principal", principal))
		return nil, services.ErrForbidden
	}

	def, ok := s.registry.Lookup(name)
	if !ok {
		logger.Info("control name not defined")
		return nil, services.ErrInvalidControlName
	}

	valid, err := s.registry.Validate(name, value)
	if err != nil {
		return nil, services.Wrap(services.ErrUnknownControl, err)
	}
	if !valid {
		logger.Info("control value failed validation", zap.String("control_value", value))
		domainErr := services.Wrap(services.ErrControlValueInvalid, nil)
		if def.InputValidation != nil {
			domainErr.WithDetail("input_validation", def.InputValidation)
		}
		return nil, domainErr
	}

	control := models.NewControl(cardID, name, value)

	// control writes on a card are serialized by the card row lock
	err = services.WithTransaction(ctx, s.txMgr, func(ctx context.Context) error {
		if _, err := s.cardRepo.GetForUpdate(ctx, cardID); err != nil {
			return err
		}
		if !def.AllowsMultiple() {
			n, err := s.repo.CountByName(ctx, cardID, name)
			if err != nil {
				return err
			}
			if n > 0 {
				return services.ErrMultipleNotAllowed
			}
		}
		return s.repo.Create(ctx, control)
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMultipleNotAllowed):
			logger.Info("control already configured and multiple values are not allowed")
			return nil, err
		case errors.Is(err, repositories.ErrNotFound):
			return nil, services.Wrap(services.ErrCardNotFound, err)
		default:
			return nil, services.WrapInternal("failed to store control", err)
		}
	}

	s.view.Invalidate(ctx, cardID)
	logger.Info("control created", zap.Int64("control_id", control.ID))
	return control, nil
}

// Delete removes a control. The control must belong to cardID and the card
// must be owned by principal.
func (s *Service) Delete(ctx context.Context, principal, cardID string, controlID int64) error {
	control, err := s.repo.GetByID(ctx, controlID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.Wrap(services.ErrControlNotFound, err)
		}
		return services.WrapInternal("failed to load control", err)
	}
	if control.CardID != cardID {
		return services.ErrForbidden
	}

	card, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return err
	}
	if !card.OwnedBy(principal) {
		s.logger.Warn("control deletion by non-owner",
			zap.String("card_id", cardID),
			zap.String("principal", principal))
		return services.ErrForbidden
	}

	if err := s.repo.Delete(ctx, controlID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.Wrap(services.ErrControlNotFound, err)
		}
		return services.WrapInternal("failed to delete control", err)
	}

	s.view.Invalidate(ctx, cardID)
	s.logger.Info("control deleted",
		zap.String("card_id", cardID),
		zap.Int64("control_id", controlID))
	return nil
}

// List returns the controls of an existing card ordered by ID
func (s *Service) List(ctx context.Context, cardID string) ([]*models.Control, error) {
	if _, err := s.cards.Get(ctx, cardID); err != nil {
		return nil, err
	}
	controls, err := s.repo.ListByCard(ctx, cardID)
	if err != nil {
		return nil, services.WrapInternal("failed to list controls", err)
	}
	return controls, nil
}

// Definitions exposes the configured control definitions by name
func (s *Service) Definitions() map[string]policy.Definition {
	out := make(map[string]policy.Definition)
	for _, name := range s.registry.Names() {
		def, _ := s.registry.Lookup(name)
		out[name] = def
	}
	return out
}
