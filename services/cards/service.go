package cards

import (
	"context"
	"errors"
	"time"

	"github.com/upb/card-control/internal/cache"
	"github.com/upb/card-control/internal/observability"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/repositories"
	"github.com/upb/card-control/services"
	"go.uber.org/zap"
)

// Issuer creates cards upstream
type Issuer interface {
	CreateCard(ctx context.Context) (*models.Card, error)
}

// Service reads cards through the cache and registers new ones
type Service struct {
	repo    repositories.CardRepository
	issuer  Issuer
	cache   cache.Store
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewService creates a card service
func NewService(
	repo repositories.CardRepository,
	issuer Issuer,
	store cache.Store,
	ttl time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:    repo,
		issuer:  issuer,
		cache:   store,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// Get returns the card, from the cache when possible. Cache failures are
// logged and fall through to the repository.
func (s *Service) Get(ctx context.Context, cardID string) (*models.Card, error) {
	key := cache.CardKey(cardID)

	cached, found, err := cache.GetJSON[models.Card](ctx, s.cache, key)
	if err != nil {
		s.logger.Warn("card cache read failed", zap.String("card_id", cardID), zap.Error(err))
	}
	s.metrics.RecordCacheLookup(observability.CacheCards, found)
	if found {
		return &cached, nil
	}

	card, err := s.repo.GetByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.Wrap(services.ErrCardNotFound, err)
		}
		return nil, services.WrapInternal("failed to load card", err)
	}

	if err := cache.SetJSON(ctx, s.cache, key, card, s.ttl); err != nil {
		s.logger.Warn("card cache write failed", zap.String("card_id", cardID), zap.Error(err))
	}
	return card, nil
}

// Create issues a card at the gateway, records principal as its creator and
// stores it
func (s *Service) Create(ctx context.Context, principal string) (*models.Card, error) {
	if principal == "" {
		return nil, services.ErrUnauthorized
	}

	card, err := s.issuer.CreateCard(ctx)
	if err != nil {
		s.logger.Error("card creation failed at gateway", zap.Error(err))
		return nil, services.Wrap(services.ErrCardCreation, err)
	}

	now := time.Now().UTC()
	card.CreatorID = principal
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	if card.UpdatedAt.IsZero() {
		card.UpdatedAt = now
	}

	if err := s.repo.Create(ctx, card); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.Wrap(services.ErrDuplicateCard, err)
		}
		return nil, services.WrapInternal("failed to store card", err)
	}

	if err := cache.SetJSON(ctx, s.cache, cache.CardKey(card.ID), card, s.ttl); err != nil {
		s.logger.Warn("card cache write failed", zap.String("card_id", card.ID), zap.Error(err))
	}

	s.logger.Info("card registered",
		zap.String("card_id", card.ID),
		zap.String("creator", principal))
	return card, nil
}

// Invalidate drops the cached copy of a card
func (s *Service) Invalidate(ctx context.Context, cardID string) {
	if err := s.cache.Delete(ctx, cache.CardKey(cardID)); err != nil {
		s.logger.Error("card cache invalidation failed", zap.String("card_id", cardID), zap.Error(err))
	}
}
