// Package mssql implements the warehouse connector for SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

// systemSchemas are filtered out of ListSchemas for SQL Server.
var systemSchemas = map[string]bool{
	"sys": true, "INFORMATION_SCHEMA": true, "guest": true,
	"db_owner": true, "db_accessadmin": true, "db_securityadmin": true,
	"db_ddladmin": true, "db_backupoperator": true, "db_datareader": true,
	"db_datawriter": true, "db_denydatareader": true, "db_denydatawriter": true,
}

var auditColumns = []string{"updated_at", "modified_at", "last_updated", "last_modified", "created_at"}

// Connector is the SQL Server warehouse connector.
type Connector struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates a connector from a sqlserver:// DSN.
func New(ctx context.Context, uri string, logger *zap.Logger) (*Connector, error) {
	db, err := sql.Open("sqlserver", uri)
	if err != nil {
		return nil, warehouse.ClassifyError(fmt.Errorf("open sqlserver connection: %w", err))
	}
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, warehouse.ClassifyError(fmt.Errorf("ping sqlserver: %w", err))
	}

	return &Connector{db: db, logger: logger.Named("warehouse.mssql")}, nil
}

// Dialect returns the dialect tag.
func (c *Connector) Dialect() string { return "mssql" }

// TestConnection runs a trivial probe query.
func (c *Connector) TestConnection(ctx context.Context) error {
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return warehouse.ClassifyError(err)
	}
	return nil
}

// ListSchemas returns user schemas, excluding system and role schemas.
func (c *Connector) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT name FROM sys.schemas ORDER BY name`)
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
		if systemSchemas[name] {
			continue
		}
		schemas = append(schemas, name)
	}
	return schemas, warehouse.ClassifyError(rows.Err())
}

// ListTables returns tables and views in a schema.
func (c *Connector) ListTables(ctx context.Context, schema string) ([]warehouse.TableInfo, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT TABLE_NAME, TABLE_TYPE
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1
		ORDER BY TABLE_NAME`, schema)
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
	rows, err := c.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION`, schema, table)
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

// FetchLastUpdateTime prefers MAX over a recognized audit column, then
// falls back to sys.dm_db_index_usage_stats last_user_update. Returns nil
// when neither signal exists.
func (c *Connector) FetchLastUpdateTime(ctx context.Context, schema, table string) (*time.Time, error) {
	columns, err := c.FetchColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	for _, candidate := range auditColumns {
		for _, col := range columns {
			if strings.EqualFold(col.Name, candidate) && isTimestampType(col.Type) {
				query := fmt.Sprintf("SELECT MAX(%s) FROM %s.%s",
					quoteIdentifier(col.Name), quoteIdentifier(schema), quoteIdentifier(table))
				var lastUpdate *time.Time
				if err := c.db.QueryRowContext(ctx, query).Scan(&lastUpdate); err != nil {
					return nil, warehouse.ClassifyError(err)
				}
				return lastUpdate, nil
			}
		}
	}

	var lastUpdate *time.Time
	err = c.db.QueryRowContext(ctx, `
		SELECT MAX(last_user_update)
		FROM sys.dm_db_index_usage_stats
		WHERE database_id = DB_ID()
		  AND object_id = OBJECT_ID(@p1)`,
		schema+"."+table).Scan(&lastUpdate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, warehouse.ClassifyError(err)
	}
	return lastUpdate, nil
}

func isTimestampType(dataType string) bool {
	t := strings.ToLower(dataType)
	return strings.Contains(t, "datetime") || t == "date" || strings.Contains(t, "timestamp")
}

// quoteIdentifier brackets a SQL Server identifier.
func quoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// ExtractQueryLog reads target-modifying queries from the plan cache DMVs.
func (c *Connector) ExtractQueryLog(ctx context.Context, since time.Time, limit int) ([]warehouse.QueryLogEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT TOP (@p1)
		    t.text,
		    s.last_execution_time,
		    s.total_elapsed_time / NULLIF(s.execution_count, 0) / 1000.0
		FROM sys.dm_exec_query_stats s
		CROSS APPLY sys.dm_exec_sql_text(s.sql_handle) t
		WHERE s.last_execution_time >= @p2
		  AND (t.text LIKE 'INSERT%' OR t.text LIKE 'MERGE%' OR t.text LIKE 'SELECT%INTO%')
		ORDER BY s.last_execution_time DESC`, limit, since)
	if err != nil {
		return nil, warehouse.ClassifyError(err)
	}
	defer rows.Close()

	var entries []warehouse.QueryLogEntry
	for rows.Next() {
		var entry warehouse.QueryLogEntry
		var durationMs *float64
		if err := rows.Scan(&entry.SQL, &entry.ExecutedAt, &durationMs); err != nil {
			return nil, warehouse.ClassifyError(err)
		}
		if durationMs != nil {
			entry.DurationMs = *durationMs
		}
		entries = append(entries, entry)
	}
	return entries, warehouse.ClassifyError(rows.Err())
}

// Close releases the connection.
func (c *Connector) Close() error {
	return c.db.Close()
}

var _ warehouse.Connector = (*Connector)(nil)
