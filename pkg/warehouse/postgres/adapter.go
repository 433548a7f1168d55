// Package postgres implements the warehouse connector for PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

// auditColumns are recognized last-update signals, in precedence order.
// When a monitored table carries one, MAX(col) is the freshness source.
var auditColumns = []string{"updated_at", "modified_at", "last_updated", "last_modified", "created_at"}

// Connector is the PostgreSQL warehouse connector.
type Connector struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a connector from a postgres DSN. The pool is lazily sized;
// introspection workloads need very few connections.
func New(ctx context.Context, uri string, logger *zap.Logger) (*Connector, error) {
	cfg, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, warehouse.ClassifyError(fmt.Errorf("parse postgres DSN: %w", err))
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, warehouse.ClassifyError(fmt.Errorf("connect to postgres: %w", err))
	}

	return &Connector{pool: pool, logger: logger.Named("warehouse.postgres")}, nil
}

// Dialect returns the dialect tag.
func (c *Connector) Dialect() string { return "postgres" }

// TestConnection runs a trivial probe query.
func (c *Connector) TestConnection(ctx context.Context) error {
	var one int
	if err := c.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return warehouse.ClassifyError(err)
	}
	return nil
}

// ListSchemas returns user schemas, excluding catalog and temp schemas.
func (c *Connector) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		  AND schema_name NOT LIKE 'pg_temp%'
		  AND schema_name NOT LIKE 'pg_toast_temp%'
		ORDER BY schema_name`)
	if err != nil {
		return nil, warehouse.ClassifyError(err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, warehouse.ClassifyError(err)
		}
		schemas = append(schemas, name)
	}
	return schemas, warehouse.ClassifyError(rows.Err())
}

// ListTables returns tables and views in a schema.
func (c *Connector) ListTables(ctx context.Context, schema string) ([]warehouse.TableInfo, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name`, schema)
	if err != nil {
		return nil, warehouse.ClassifyError(err)
	}
	defer rows.Close()

	var tables []warehouse.TableInfo
	for rows.Next() {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			return nil, warehouse.ClassifyError(err)
		}
		kind := warehouse.KindTable
		if tableType == "VIEW" {
			kind = warehouse.KindView
		}
		tables = append(tables, warehouse.TableInfo{Schema: schema, Name: name, Kind: kind})
	}
	return tables, warehouse.ClassifyError(rows.Err())
}

// FetchColumns returns the column list ordered by ordinal position.
func (c *Connector) FetchColumns(ctx context.Context, schema, table string) ([]models.ColumnDef, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, warehouse.ClassifyError(err)
	}
	defer rows.Close()

	var columns []models.ColumnDef
	for rows.Next() {
		var name, dataType, nullable string
		var ordinal int
		if err := rows.Scan(&name, &dataType, &nullable, &ordinal); err != nil {
			return nil, warehouse.ClassifyError(err)
		}
		columns = append(columns, models.ColumnDef{
			Name:     name,
			Type:     strings.ToUpper(dataType),
			Nullable: nullable == "YES",
			Ordinal:  ordinal,
		})
	}
	return columns, warehouse.ClassifyError(rows.Err())
}

// FetchLastUpdateTime returns MAX over the first recognized audit column,
// or nil when the table carries none. Audit columns beat catalog metadata
// because autovacuum timestamps do not track row modification.
func (c *Connector) FetchLastUpdateTime(ctx context.Context, schema, table string) (*time.Time, error) {
	columns, err := c.FetchColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	auditCol := ""
	for _, candidate := range auditColumns {
		for _, col := range columns {
			if strings.EqualFold(col.Name, candidate) && isTimestampType(col.Type) {
				auditCol = col.Name
				break
			}
		}
		if auditCol != "" {
			break
		}
	}
	if auditCol == "" {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT MAX(%s) FROM %s.%s",
		pgx.Identifier{auditCol}.Sanitize(),
		pgx.Identifier{schema}.Sanitize(),
		pgx.Identifier{table}.Sanitize())

	var lastUpdate *time.Time
	if err := c.pool.QueryRow(ctx, query).Scan(&lastUpdate); err != nil {
		return nil, warehouse.ClassifyError(err)
	}
	return lastUpdate, nil
}

func isTimestampType(dataType string) bool {
	t := strings.ToLower(dataType)
	return strings.Contains(t, "timestamp") || t == "date"
}

// ExtractQueryLog reads target-modifying queries from pg_stat_statements.
// Requires the extension to be installed; reports UnsupportedError otherwise.
func (c *Connector) ExtractQueryLog(ctx context.Context, since time.Time, limit int) ([]warehouse.QueryLogEntry, error) {
	var installed bool
	err := c.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'pg_stat_statements')").Scan(&installed)
	if err != nil {
		return nil, warehouse.ClassifyError(err)
	}
	if !installed {
		return nil, &warehouse.UnsupportedError{Operation: "extract_query_log", Dialect: "postgres"}
	}

	// pg_stat_statements keeps no per-execution timestamps. since is not
	// applied: every matching statement is returned, most-called first, and
	// ExecutedAt is set to the time of this read.
	rows, err := c.pool.Query(ctx, `
		SELECT s.query, COALESCE(r.rolname, ''), s.mean_exec_time
		FROM pg_stat_statements s
		LEFT JOIN pg_roles r ON r.oid = s.userid
		WHERE s.query ~* '^\s*(insert|create\s+table|merge)'
		ORDER BY s.calls DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, warehouse.ClassifyError(err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var entries []warehouse.QueryLogEntry
	for rows.Next() {
		var entry warehouse.QueryLogEntry
		if err := rows.Scan(&entry.SQL, &entry.User, &entry.DurationMs); err != nil {
			return nil, warehouse.ClassifyError(err)
		}
		entry.ExecutedAt = now
		entries = append(entries, entry)
	}
	return entries, warehouse.ClassifyError(rows.Err())
}

// Close releases the pool.
func (c *Connector) Close() error {
	c.pool.Close()
	return nil
}

var _ warehouse.Connector = (*Connector)(nil)
