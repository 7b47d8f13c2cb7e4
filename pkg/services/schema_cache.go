package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/insights-engine/pkg/logging"
	"github.com/ekaya-inc/insights-engine/pkg/metrics"
	"github.com/ekaya-inc/insights-engine/pkg/models"
)

// DefaultSchemaCacheTTL is how long a fetched snapshot is served before refreshing.
const DefaultSchemaCacheTTL = 5 * time.Minute

// SchemaFetchFunc reads the catalog. datasource.SchemaDiscoverer.DiscoverSchema satisfies it.
type SchemaFetchFunc func(ctx context.Context) (*models.SchemaSnapshot, error)

// SchemaCache serves the target database schema with time-based expiry.
type SchemaCache interface {
	// Get returns the cached snapshot, refreshing it when older than the TTL.
	// It never fails: when a refresh fails the previous snapshot is returned,
	// or an empty one if there is none.
	Get(ctx context.Context) *models.SchemaSnapshot

	// Invalidate forces the next Get to refresh.
	Invalidate()
}

type cachedSchema struct {
	snapshot  *models.SchemaSnapshot
	fetchedAt time.Time
}

type schemaCache struct {
	fetch   SchemaFetchFunc
	ttl     time.Duration
	clock   clockwork.Clock
	current atomic.Pointer[cachedSchema]
	group   singleflight.Group
	logger  *zap.Logger
}

// NewSchemaCache creates a cache over fetch. A nil clock uses the real clock and a
// non-positive ttl uses DefaultSchemaCacheTTL.
func NewSchemaCache(fetch SchemaFetchFunc, ttl time.Duration, clock clockwork.Clock, logger *zap.Logger) SchemaCache {
	if ttl <= 0 {
		ttl = DefaultSchemaCacheTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &schemaCache{
		fetch:  fetch,
		ttl:    ttl,
		clock:  clock,
		logger: logger.Named("schema-cache"),
	}
}

var _ SchemaCache = (*schemaCache)(nil)

func (c *schemaCache) Get(ctx context.Context) *models.SchemaSnapshot {
	if snap, ok := c.fresh(); ok {
		metrics.SchemaCache.WithLabelValues("hit").Inc()
		return snap
	}

	// Concurrent callers in the expiry window share one catalog query.
	v, _, _ := c.group.Do("schema", func() (any, error) {
		if snap, ok := c.fresh(); ok {
			return snap, nil
		}
		return c.refresh(ctx), nil
	})
	return v.(*models.SchemaSnapshot)
}

func (c *schemaCache) Invalidate() {
	c.current.Store(nil)
}

func (c *schemaCache) fresh() (*models.SchemaSnapshot, bool) {
	entry := c.current.Load()
	if entry == nil || c.clock.Since(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	return entry.snapshot, true
}

func (c *schemaCache) refresh(ctx context.Context) *models.SchemaSnapshot {
	start := c.clock.Now()
	snap, err := c.fetch(ctx)
	if err != nil {
		metrics.SchemaCache.WithLabelValues("refresh_failed").Inc()
		if stale := c.current.Load(); stale != nil {
			c.logger.Error("Schema refresh failed, serving stale snapshot",
				zap.Time("stale_since", stale.fetchedAt),
				zap.String("error", logging.SanitizeError(err)))
			return stale.snapshot
		}
		c.logger.Error("Schema refresh failed, serving empty schema",
			zap.String("error", logging.SanitizeError(err)))
		return models.EmptySchema()
	}
	if snap == nil {
		snap = models.EmptySchema()
	}

	c.current.Store(&cachedSchema{snapshot: snap, fetchedAt: c.clock.Now()})
	metrics.SchemaCache.WithLabelValues("miss").Inc()
	metrics.SchemaTables.Set(float64(snap.TableCount()))

	c.logger.Info("Schema cached",
		zap.Int("tables", snap.TableCount()),
		zap.Duration("elapsed", c.clock.Since(start)))
	return snap
}
