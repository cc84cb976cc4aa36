// Package cache stores retrieval responses keyed by query and parameters.
package cache

import (
	"context"
	"fmt"

	"github.com/trialmatch/trialrag/internal/config"
	"github.com/trialmatch/trialrag/internal/pkg/errors"
)

// Cache is a string key/value store for raw retrieval responses.
type Cache interface {
	// Get returns the cached value and whether it was found.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key.
	Set(ctx context.Context, key, value string) error

	// Close releases resources.
	Close() error
}

// New creates a cache from configuration. The "none" type yields a nil
// Cache, which callers treat as disabled.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryCache(cfg.Size, cfg.TTL), nil
	case "redis":
		rc, err := NewRedisCache(cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return rc, nil
	case "none":
		return nil, nil
	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown cache type: %s", cfg.Type))
	}
}
