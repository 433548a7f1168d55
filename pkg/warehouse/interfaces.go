// Package warehouse defines the adapter contract for external analytical
// warehouses. Dialect implementations register themselves at init time and
// are instantiated per-use through the registry; the core always calls
// Close on every connector it creates.
package warehouse

import (
	"context"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// Table kinds reported by ListTables.
const (
	KindTable = "TABLE"
	KindView  = "VIEW"
)

// TableInfo describes one table or view in a warehouse schema.
type TableInfo struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
}

// QueryLogEntry is one captured warehouse query with target-modifying
// semantics (INSERT / CREATE-AS / MERGE).
type QueryLogEntry struct {
	SQL        string    `json:"sql"`
	User       string    `json:"user"`
	ExecutedAt time.Time `json:"executed_at"`
	DurationMs float64   `json:"duration_ms"`
}

// Connector is the dialect-polymorphic capability set the core depends on.
// All errors returned are recoverable; none is fatal to the scanner.
type Connector interface {
	// ListSchemas returns user schemas, with catalog/system schemas
	// filtered out for the dialect.
	ListSchemas(ctx context.Context) ([]string, error)

	// ListTables returns tables and views in a schema.
	ListTables(ctx context.Context, schema string) ([]TableInfo, error)

	// FetchColumns returns the column list ordered by ordinal position.
	// Ordering is required for snapshot hash stability.
	FetchColumns(ctx context.Context, schema, table string) ([]models.ColumnDef, error)

	// FetchLastUpdateTime returns the best available last-modification
	// signal for a table, or nil when freshness is not evaluable.
	FetchLastUpdateTime(ctx context.Context, schema, table string) (*time.Time, error)

	// ExtractQueryLog returns recent queries with target-modifying
	// semantics from the dialect's query-history source.
	ExtractQueryLog(ctx context.Context, since time.Time, limit int) ([]QueryLogEntry, error)

	// TestConnection runs a trivial probe query.
	TestConnection(ctx context.Context) error

	// Dialect returns the dialect tag this connector was registered under.
	Dialect() string

	// Close releases any pooled resources.
	Close() error
}
