// Package postgres implements the datasource interfaces for PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/insights-engine/pkg/models"
)

// Querier is the subset of *pgxpool.Pool used by the adapters.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DefaultNamespace is the schema introspected when none is configured.
const DefaultNamespace = "public"

// information_schema domains are cast to plain types so pgx can scan them.
const discoverColumnsQuery = `
	SELECT
		c.table_name::text,
		c.column_name::text,
		c.data_type::text,
		c.is_nullable = 'YES' AS is_nullable,
		c.column_default::text,
		c.character_maximum_length::int,
		c.numeric_precision::int,
		c.numeric_scale::int,
		c.ordinal_position::int
	FROM information_schema.columns c
	JOIN information_schema.tables t
	  ON t.table_schema = c.table_schema
	 AND t.table_name = c.table_name
	WHERE c.table_schema = $1
	  AND t.table_type = 'BASE TABLE'
	ORDER BY c.table_name, c.ordinal_position
`

// SchemaDiscoverer provides PostgreSQL catalog introspection.
type SchemaDiscoverer struct {
	pool      Querier
	namespace string
	logger    *zap.Logger
}

// NewSchemaDiscoverer creates a discoverer for namespace (default "public").
// If logger is nil, a no-op logger is used.
func NewSchemaDiscoverer(pool Querier, namespace string, logger *zap.Logger) *SchemaDiscoverer {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaDiscoverer{
		pool:      pool,
		namespace: namespace,
		logger:    logger.Named("schema-discoverer"),
	}
}

// DiscoverSchema returns every base table in the namespace with its columns.
func (d *SchemaDiscoverer) DiscoverSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	start := time.Now()

	rows, err := d.pool.Query(ctx, discoverColumnsQuery, d.namespace)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var tables []models.TableSchema
	for rows.Next() {
		var (
			tableName string
			col       models.ColumnDescriptor
			ordinal   int32
		)
		if err := rows.Scan(
			&tableName,
			&col.Name,
			&col.DataType,
			&col.IsNullable,
			&col.DefaultValue,
			&col.MaxLength,
			&col.NumericPrecision,
			&col.NumericScale,
			&ordinal,
		); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.OrdinalPosition = int(ordinal)

		// Rows arrive grouped by table.
		if n := len(tables); n == 0 || tables[n-1].Name != tableName {
			tables = append(tables, models.TableSchema{Name: tableName})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	d.logger.Debug("Discovered schema",
		zap.String("namespace", d.namespace),
		zap.Int("tables", len(tables)),
		zap.Duration("elapsed", time.Since(start)))

	return models.NewSchemaSnapshot(tables, time.Now()), nil
}

var _ datasource.SchemaDiscoverer = (*SchemaDiscoverer)(nil)
