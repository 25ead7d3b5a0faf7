package services

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ostehost/command-central-sub001/internal/git"
	log "github.com/ostehost/command-central-sub001/internal/log"
	"github.com/ostehost/command-central-sub001/internal/metrics"
	"github.com/ostehost/command-central-sub001/internal/models"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// DefaultStatusCacheTTL is how long a repository's status stays cached.
const DefaultStatusCacheTTL = 2 * time.Second

// StatusSource runs the raw status query for one repository.
type StatusSource interface {
	Status(ctx context.Context, repoRoot string) (string, error)
}

// ParsedStatus is one categorized row of the status query.
type ParsedStatus struct {
	Path                 string
	XY                   string
	Category             models.Category
	Change               models.ChangeKind
	OriginalPath         string
	Score                string
	ModifiedAfterStaging bool
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Total   int64
	HitRate float64
}

// StatusCache caches per-repository status results for a TTL and counts
// hits and misses. Failed queries are never cached.
type StatusCache struct {
	source  StatusSource
	breaker *CircuitBreaker
	entries *gocache.Cache
	logger  *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	total  atomic.Int64
}

// NewStatusCache wraps source. A nil breaker disables rate limiting.
func NewStatusCache(source StatusSource, breaker *CircuitBreaker, ttl time.Duration, logger *zap.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusCacheTTL
	}
	return &StatusCache{
		source:  source,
		breaker: breaker,
		entries: gocache.New(ttl, 2*ttl),
		logger:  log.OrNop(logger),
	}
}

func cacheKey(repoRoot string) string {
	return filepath.Clean(repoRoot)
}

// GetBatchStatus returns every file reported for repoRoot keyed by path.
// The map is the caller's own copy.
func (c *StatusCache) GetBatchStatus(ctx context.Context, repoRoot string) (map[string]ParsedStatus, error) {
	c.total.Add(1)
	key := cacheKey(repoRoot)

	if cached, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		metrics.RecordStatusRequest(true)
		return maps.Clone(cached.(map[string]ParsedStatus)), nil
	}
	c.misses.Add(1)
	metrics.RecordStatusRequest(false)

	if c.breaker != nil && !c.breaker.CanProceed() {
		return nil, ErrCircuitOpen
	}

	raw, err := c.source.Status(ctx, key)
	if err != nil {
		metrics.RecordStatusFailure()
		return nil, fmt.Errorf("status %s: %w", key, err)
	}

	files := git.ParseStatusV2(raw)
	result := make(map[string]ParsedStatus, len(files))
	for _, f := range files {
		category := git.CategorizeStatus(f.XY)
		result[f.Path] = ParsedStatus{
			Path:                 f.Path,
			XY:                   f.XY,
			Category:             category,
			Change:               git.ChangeKindFor(f.XY, category),
			OriginalPath:         f.OriginalPath,
			Score:                f.Score,
			ModifiedAfterStaging: git.IsModifiedAfterStaging(f.XY),
		}
	}
	c.entries.SetDefault(key, result)
	c.logger.Debug("status cached", zap.String("repo", key), zap.Int("files", len(result)))
	return maps.Clone(result), nil
}

// Invalidate drops the cached entry for repoRoot regardless of TTL.
func (c *StatusCache) Invalidate(repoRoot string) {
	c.entries.Delete(cacheKey(repoRoot))
}

// InvalidateAll drops every cached entry.
func (c *StatusCache) InvalidateAll() {
	c.entries.Flush()
}

// Stats returns a snapshot of the counters.
func (c *StatusCache) Stats() CacheStats {
	s := CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Total:  c.total.Load(),
	}
	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	return s
}
