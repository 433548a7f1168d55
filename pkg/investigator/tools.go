package investigator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/llm"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

// LineageQuerier is the slice of the lineage engine the agent tools need.
type LineageQuerier interface {
	Upstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error)
	Downstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error)
}

// discoveryTools returns the agent's tool surface: exactly five tools,
// bound per-invocation to the current connector and lineage engine.
func discoveryTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		llm.NewToolDefinition(
			"list_warehouse_schemas",
			"List the user schemas in the warehouse",
			map[string]llm.ParameterProperty{},
			nil,
		),
		llm.NewToolDefinition(
			"list_schema_tables",
			"List tables and views in a schema",
			map[string]llm.ParameterProperty{
				"schema": {Type: "string", Description: "Schema name"},
			},
			[]string{"schema"},
		),
		llm.NewToolDefinition(
			"inspect_table_columns",
			"Get the ordered column list of a table",
			map[string]llm.ParameterProperty{
				"schema": {Type: "string", Description: "Schema name"},
				"table":  {Type: "string", Description: "Table name"},
			},
			[]string{"schema", "table"},
		),
		llm.NewToolDefinition(
			"check_table_freshness",
			"Get the best available last-update timestamp of a table",
			map[string]llm.ParameterProperty{
				"schema": {Type: "string", Description: "Schema name"},
				"table":  {Type: "string", Description: "Table name"},
			},
			[]string{"schema", "table"},
		),
		llm.NewToolDefinition(
			"get_known_lineage",
			"Get already-known upstream and downstream tables for a fully qualified name",
			map[string]llm.ParameterProperty{
				"fqn": {Type: "string", Description: "Fully qualified table name, schema.table"},
			},
			[]string{"fqn"},
		),
	}
}

// toolExecutor is the per-invocation closure over the connector and the
// lineage engine. No global state.
type toolExecutor struct {
	conn    warehouse.Connector
	lineage LineageQuerier
	logger  *zap.Logger
}

// Execute dispatches one tool call. Tool failures are returned as JSON
// error payloads so the agent can route around them instead of dying.
func (e *toolExecutor) Execute(ctx context.Context, name, arguments string) string {
	e.logger.Debug("executing discovery tool",
		zap.String("tool", name),
		zap.String("arguments", arguments))

	result, err := e.dispatch(ctx, name, arguments)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(payload)
}

func (e *toolExecutor) dispatch(ctx context.Context, name, arguments string) (any, error) {
	var args struct {
		Schema string `json:"schema"`
		Table  string `json:"table"`
		FQN    string `json:"fqn"`
	}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	switch name {
	case "list_warehouse_schemas":
		return e.conn.ListSchemas(ctx)

	case "list_schema_tables":
		if args.Schema == "" {
			return nil, fmt.Errorf("schema is required")
		}
		return e.conn.ListTables(ctx, args.Schema)

	case "inspect_table_columns":
		if args.Schema == "" || args.Table == "" {
			return nil, fmt.Errorf("schema and table are required")
		}
		return e.conn.FetchColumns(ctx, args.Schema, args.Table)

	case "check_table_freshness":
		if args.Schema == "" || args.Table == "" {
			return nil, fmt.Errorf("schema and table are required")
		}
		lastUpdate, err := e.conn.FetchLastUpdateTime(ctx, args.Schema, args.Table)
		if err != nil {
			return nil, err
		}
		if lastUpdate == nil {
			return map[string]any{"last_update": nil, "note": "no readable freshness signal"}, nil
		}
		return map[string]any{
			"last_update": lastUpdate.UTC().Format(time.RFC3339),
			"age_minutes": int(time.Since(*lastUpdate).Minutes()),
		}, nil

	case "get_known_lineage":
		if args.FQN == "" {
			return nil, fmt.Errorf("fqn is required")
		}
		upstream, err := e.lineage.Upstream(ctx, args.FQN, 3, 0)
		if err != nil {
			return nil, err
		}
		downstream, err := e.lineage.Downstream(ctx, args.FQN, 3, 0)
		if err != nil {
			return nil, err
		}
		return map[string]any{"upstream": upstream, "downstream": downstream}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}
