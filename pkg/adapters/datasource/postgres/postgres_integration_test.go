//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/insights-engine/pkg/testhelpers"
)

func TestSchemaDiscoverer_DiscoverSchema(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)

	d := NewSchemaDiscoverer(testDB.Pool, "", nil)
	snap, err := d.DiscoverSchema(context.Background())
	require.NoError(t, err)

	for _, name := range testhelpers.SeedTables {
		_, ok := snap.Table(name)
		assert.True(t, ok, "expected table %s", name)
	}

	perf, ok := snap.Table("t_ad_campaign_daily_performance")
	require.True(t, ok)
	require.Len(t, perf.Columns, 7)
	assert.Equal(t, "raw_campaign_id", perf.Columns[0].Name)
	assert.False(t, perf.Columns[0].IsNullable)

	spend := perf.Columns[2]
	assert.Equal(t, "spend", spend.Name)
	assert.Equal(t, "numeric", spend.DataType)
	require.NotNil(t, spend.NumericPrecision)
	require.NotNil(t, spend.NumericScale)
	assert.Equal(t, int32(12), *spend.NumericPrecision)
	assert.Equal(t, int32(2), *spend.NumericScale)

	campaign, ok := snap.Table("t_ad_campaign")
	require.True(t, ok)
	require.NotNil(t, campaign.Columns[2].MaxLength)
	assert.Equal(t, int32(32), *campaign.Columns[2].MaxLength)
}

func TestQueryExecutor_Execute_Success(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)

	exec := NewQueryExecutor(testDB.Pool, 5*time.Second, nil)
	result := exec.Execute(context.Background(),
		"SELECT raw_campaign_id, ROUND(SUM(spend)::numeric, 2) AS total_spend FROM t_ad_campaign_daily_performance GROUP BY raw_campaign_id ORDER BY raw_campaign_id LIMIT 100")

	require.True(t, result.OK(), "failure: %+v", result.Failure)
	assert.Equal(t, []string{"raw_campaign_id", "total_spend"}, result.Success.Columns)
	assert.Equal(t, 2, result.Success.RowCount)

	first := result.Success.Rows[0]
	id, _ := first.Get("raw_campaign_id")
	assert.Equal(t, "c1", id.String())
	spend, ok := first.Get("total_spend")
	require.True(t, ok)
	n, isNum := spend.AsNumber()
	assert.True(t, isNum)
	assert.InDelta(t, 120.50, n, 0.001)
}

func TestQueryExecutor_Execute_Failure(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)

	exec := NewQueryExecutor(testDB.Pool, 5*time.Second, nil)
	result := exec.Execute(context.Background(), "SELECT spendd FROM t_ad_daily_performance LIMIT 100")

	require.False(t, result.OK())
	assert.Equal(t, "42703", result.Failure.Code)
	assert.Contains(t, result.Failure.Message, "spendd")
	assert.NotZero(t, result.Failure.Position)
}

func TestQueryExecutor_Execute_Timeout(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)

	exec := NewQueryExecutor(testDB.Pool, 50*time.Millisecond, nil)
	result := exec.Execute(context.Background(), "SELECT pg_sleep(2) LIMIT 1")

	require.False(t, result.OK())
	assert.Equal(t, "57014", result.Failure.Code)
}
