// Package datasource defines how the pipeline reads the analytics database.
package datasource

import (
	"context"

	"github.com/ekaya-inc/insights-engine/pkg/models"
)

// SchemaDiscoverer reads the catalog of the target namespace.
type SchemaDiscoverer interface {
	// DiscoverSchema returns every base table and its columns in declaration order.
	DiscoverSchema(ctx context.Context) (*models.SchemaSnapshot, error)
}

// QueryExecutor runs a single statement exactly once.
// It never returns an error: engine and transport failures are reported through
// ExecutionResult.Failure so their diagnostics can be fed back to the generator.
type QueryExecutor interface {
	Execute(ctx context.Context, sqlQuery string) *models.ExecutionResult
}
