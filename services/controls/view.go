package controls

import (
	"context"
	"time"

	"github.com/upb/card-control/internal/cache"
	"github.com/upb/card-control/internal/observability"
	"github.com/upb/card-control/internal/policy"
	"github.com/upb/card-control/repositories"
	"github.com/upb/card-control/services"
	"go.uber.org/zap"
)

// View serves a card's controls grouped by name. Results are cached under
// group_control_<card> until the next control write on that card.
type View struct {
	repo    repositories.ControlRepository
	cache   cache.Store
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewView creates a grouped control view
func NewView(
	repo repositories.ControlRepository,
	store cache.Store,
	ttl time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *View {
	return &View{
		repo:    repo,
		cache:   store,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// Get returns the card's grouped controls. A card with no controls yields an
// empty map. Cache errors are treated as a miss.
func (v *View) Get(ctx context.Context, cardID string) (policy.GroupedControls, error) {
	key := cache.GroupedControlsKey(cardID)

	cached, found, err := cache.GetJSON[policy.GroupedControls](ctx, v.cache, key)
	if err != nil {
		v.logger.Warn("grouped controls cache read failed", zap.String("card_id", cardID), zap.Error(err))
	}
	v.metrics.RecordCacheLookup(observability.CacheGroupedControls, found)
	if found {
		if cached == nil {
			cached = policy.GroupedControls{}
		}
		return cached, nil
	}

	grouped, err := v.repo.GroupByCard(ctx, cardID)
	if err != nil {
		return nil, services.WrapInternal("failed to load controls", err)
	}
	result := policy.GroupedControls(grouped)
	if result == nil {
		result = policy.GroupedControls{}
	}

	if err := cache.SetJSON(ctx, v.cache, key, result, v.ttl); err != nil {
		v.logger.Warn("grouped controls cache write failed", zap.String("card_id", cardID), zap.Error(err))
	}
	v.logger.Debug("grouped controls loaded from store",
		zap.String("card_id", cardID),
		zap.Int("controls", len(result)))
	return result, nil
}

// Invalidate drops the cached entry for a card
func (v *View) Invalidate(ctx context.Context, cardID string) {
	if err := v.cache.Delete(ctx, cache.GroupedControlsKey(cardID)); err != nil {
		v.logger.Error("grouped controls cache invalidation failed",
			zap.String("card_id", cardID),
			zap.Error(err))
	}
}
