// Package cache provides the key/value store used to memoise cards and
// grouped controls. Values are opaque bytes; GetJSON and SetJSON layer typed
// access on top. Two backends exist: an in-process LRU with TTL and Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = errors.New("cache: miss")

// Store is a key/value cache. A ttl of zero means the store default.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const (
	cardPrefix         = "card_"
	groupControlPrefix = "group_control_"
)

// CardKey is the cache key of a card
func CardKey(cardID string) string {
	return cardPrefix + cardID
}

// GroupedControlsKey is the cache key of a card's grouped controls
func GroupedControlsKey(cardID string) string {
	return groupControlPrefix + cardID
}

// GetJSON reads key and decodes it into a T. found is false on a miss.
func GetJSON[T any](ctx context.Context, s Store, key string) (value T, found bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return value, true, nil
}

// SetJSON encodes value and stores it under key
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}
