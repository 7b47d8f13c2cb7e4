package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/insights-engine/pkg/models"
)

func testSnapshot(tables ...string) *models.SchemaSnapshot {
	ts := make([]models.TableSchema, len(tables))
	for i, name := range tables {
		ts[i] = models.TableSchema{Name: name, Columns: []models.ColumnDescriptor{{Name: "id", DataType: "text"}}}
	}
	return models.NewSchemaSnapshot(ts, time.Now())
}

type countingFetcher struct {
	calls atomic.Int32
	snaps []*models.SchemaSnapshot
	errs  []error
}

func (f *countingFetcher) fetch(ctx context.Context) (*models.SchemaSnapshot, error) {
	n := int(f.calls.Add(1)) - 1
	var err error
	if n < len(f.errs) {
		err = f.errs[n]
	}
	if err != nil {
		return nil, err
	}
	if n < len(f.snaps) {
		return f.snaps[n], nil
	}
	return f.snaps[len(f.snaps)-1], nil
}

func TestSchemaCache_ServesCachedSnapshotWithinTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &countingFetcher{snaps: []*models.SchemaSnapshot{testSnapshot("t_ad"), testSnapshot("t_ad", "t_ad_campaign")}}
	cache := NewSchemaCache(fetcher.fetch, 5*time.Minute, clock, nil)

	first := cache.Get(context.Background())
	clock.Advance(4*time.Minute + 59*time.Second)
	second := cache.Get(context.Background())

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, fetcher.calls.Load())
}

func TestSchemaCache_RefreshesAfterTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &countingFetcher{snaps: []*models.SchemaSnapshot{testSnapshot("t_ad"), testSnapshot("t_ad", "t_ad_campaign")}}
	cache := NewSchemaCache(fetcher.fetch, 5*time.Minute, clock, nil)

	first := cache.Get(context.Background())
	clock.Advance(5 * time.Minute)
	second := cache.Get(context.Background())
	third := cache.Get(context.Background())

	assert.EqualValues(t, 2, fetcher.calls.Load())
	assert.Equal(t, 1, first.TableCount())
	assert.Equal(t, 2, second.TableCount())
	assert.Same(t, second, third)
}

func TestSchemaCache_FailureWithoutSnapshotReturnsEmpty(t *testing.T) {
	fetcher := &countingFetcher{errs: []error{errors.New("connection refused")}, snaps: []*models.SchemaSnapshot{testSnapshot("t_ad")}}
	cache := NewSchemaCache(fetcher.fetch, time.Minute, clockwork.NewFakeClock(), nil)

	snap := cache.Get(context.Background())
	require.NotNil(t, snap)
	assert.True(t, snap.IsEmpty())

	// A failed fetch is not cached, so the next call retries.
	snap = cache.Get(context.Background())
	assert.Equal(t, 1, snap.TableCount())
	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestSchemaCache_FailureServesStaleSnapshot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &countingFetcher{
		snaps: []*models.SchemaSnapshot{testSnapshot("t_ad"), nil},
		errs:  []error{nil, errors.New("timeout")},
	}
	cache := NewSchemaCache(fetcher.fetch, time.Minute, clock, nil)

	first := cache.Get(context.Background())
	clock.Advance(2 * time.Minute)
	second := cache.Get(context.Background())

	assert.Same(t, first, second)
	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestSchemaCache_Invalidate(t *testing.T) {
	fetcher := &countingFetcher{snaps: []*models.SchemaSnapshot{testSnapshot("t_ad")}}
	cache := NewSchemaCache(fetcher.fetch, time.Hour, clockwork.NewFakeClock(), nil)

	cache.Get(context.Background())
	cache.Invalidate()
	cache.Get(context.Background())

	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestSchemaCache_ConcurrentCallersShareRefresh(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) (*models.SchemaSnapshot, error) {
		calls.Add(1)
		<-release
		return testSnapshot("t_ad"), nil
	}
	cache := NewSchemaCache(fetch, time.Minute, clockwork.NewFakeClock(), nil)

	var wg sync.WaitGroup
	results := make([]*models.SchemaSnapshot, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.Get(context.Background())
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}
