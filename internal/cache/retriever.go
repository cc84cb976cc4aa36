package cache

import (
	"context"

	"github.com/trialmatch/trialrag/internal/lightrag"
	"github.com/trialmatch/trialrag/internal/metrics"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
)

// Retriever answers a retrieval query with the sink's raw response text.
type Retriever interface {
	Query(ctx context.Context, query string, param lightrag.QueryParam) (string, error)
}

// CachedRetriever serves repeated queries from a Cache. Only successful
// responses are stored. Cache failures degrade to a direct query.
type CachedRetriever struct {
	inner   Retriever
	cache   Cache
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewCachedRetriever wraps inner with c.
func NewCachedRetriever(inner Retriever, c Cache, log *logger.Logger, m *metrics.Metrics) *CachedRetriever {
	if log == nil {
		log = logger.Default()
	}
	return &CachedRetriever{
		inner:   inner,
		cache:   c,
		log:     log.WithComponent("cache"),
		metrics: m,
	}
}

// Query implements Retriever.
func (r *CachedRetriever) Query(ctx context.Context, query string, param lightrag.QueryParam) (string, error) {
	key := param.CacheKey(query)

	value, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		r.log.Warn("Cache lookup failed", "error", err)
		r.metrics.CacheLookup("error")
	case ok:
		r.metrics.CacheLookup("hit")
		return value, nil
	default:
		r.metrics.CacheLookup("miss")
	}

	resp, err := r.inner.Query(ctx, query, param)
	if err != nil {
		return "", err
	}

	if err := r.cache.Set(ctx, key, resp); err != nil {
		r.log.Warn("Cache store failed", "error", err)
	}
	return resp, nil
}
