// Package testhelpers starts the PostgreSQL container shared by integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/database"
)

// PostgresImage is the stock image the test database runs on.
const PostgresImage = "postgres:16-alpine"

// TestDB holds a shared test database container and connection pool.
// The database carries a small marketing schema with seed rows and the
// usage log migrations.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "ad_insights",
			"POSTGRES_USER":     "insights",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The server restarts once after initdb, so the ready line appears twice.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://insights:test_password@%s:%s/ad_insights?sslmode=disable",
		host, port.Port())

	db, err := database.NewConnection(ctx, &database.Config{
		URL:             connStr,
		MaxConnections:  5,
		ApplicationName: "insights-engine-test",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	if _, err := db.Exec(ctx, seedSchema); err != nil {
		return nil, fmt.Errorf("failed to seed marketing schema: %w", err)
	}

	// golang-migrate needs database/sql; closing this handle leaves the pool open.
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      db.Pool,
		ConnStr:   connStr,
	}, nil
}

// SeedTables lists the marketing tables created by the seed script.
var SeedTables = []string{
	"t_ad",
	"t_ad_campaign",
	"t_ad_campaign_daily_performance",
	"t_ad_daily_performance",
	"t_ad_image_labelings",
	"t_ad_video_labelings",
}

const seedSchema = `
CREATE TABLE IF NOT EXISTS t_ad_campaign (
	raw_campaign_id TEXT PRIMARY KEY,
	campaign_name   TEXT NOT NULL,
	platform        VARCHAR(32),
	status          VARCHAR(16)
);

CREATE TABLE IF NOT EXISTS t_ad (
	raw_ad_id       TEXT PRIMARY KEY,
	raw_campaign_id TEXT REFERENCES t_ad_campaign (raw_campaign_id),
	ad_name         TEXT,
	asset_id        TEXT,
	thumbnail_url   TEXT
);

CREATE TABLE IF NOT EXISTS t_ad_campaign_daily_performance (
	raw_campaign_id TEXT NOT NULL,
	date            DATE NOT NULL,
	spend           NUMERIC(12,2),
	impressions     BIGINT,
	clicks          BIGINT,
	purchases       INTEGER,
	revenue         NUMERIC(12,2)
);

CREATE TABLE IF NOT EXISTS t_ad_daily_performance (
	raw_ad_id   TEXT NOT NULL,
	date        DATE NOT NULL,
	spend       NUMERIC(12,2),
	impressions BIGINT,
	clicks      BIGINT,
	purchases   INTEGER,
	revenue     NUMERIC(12,2)
);

CREATE TABLE IF NOT EXISTS t_ad_image_labelings (
	raw_asset_id TEXT PRIMARY KEY,
	f_ad_type    TEXT,
	f_has_person BOOLEAN
);

CREATE TABLE IF NOT EXISTS t_ad_video_labelings (
	raw_asset_id  TEXT NOT NULL,
	clip_index    INTEGER NOT NULL,
	video_ad_type TEXT,
	cf_has_voice  BOOLEAN
);

TRUNCATE t_ad_campaign, t_ad, t_ad_campaign_daily_performance, t_ad_daily_performance,
	t_ad_image_labelings, t_ad_video_labelings;

INSERT INTO t_ad_campaign VALUES
	('c1', 'Spring Sale', 'meta', 'active'),
	('c2', 'Brand Awareness', 'tiktok', 'paused');

INSERT INTO t_ad VALUES
	('a1', 'c1', 'Spring Video', 'v1', 'https://cdn.example.com/dwnld/video/v1.mp4'),
	('a2', 'c1', 'Spring Image', 'i1', 'https://cdn.example.com/creatives/i1.jpg'),
	('a3', 'c2', 'Brand Video', 'v2', NULL);

INSERT INTO t_ad_campaign_daily_performance VALUES
	('c1', CURRENT_DATE, 120.50, 5000, 150, 5, 480.00),
	('c2', CURRENT_DATE, 80.25, 3200, 40, 1, 60.00);

INSERT INTO t_ad_daily_performance VALUES
	('a1', CURRENT_DATE, 70.00, 3000, 100, 3, 300.00),
	('a2', CURRENT_DATE, 50.50, 2000, 50, 2, 180.00),
	('a3', CURRENT_DATE, 80.25, 3200, 40, 1, 60.00);

INSERT INTO t_ad_image_labelings VALUES
	('i1', 'single_image', true);

INSERT INTO t_ad_video_labelings VALUES
	('v1', 0, 'ugc', true),
	('v1', 1, 'ugc', false),
	('v2', 0, 'product_demo', true);
`
