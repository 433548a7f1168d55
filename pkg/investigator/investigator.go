// Package investigator proposes which warehouse tables to enroll for
// monitoring: a bounded tool-calling agent as the primary path, a
// name-pattern classifier as the deterministic fallback, and a purely
// deterministic rediscovery diff.
package investigator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/llm"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/prompts"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

const (
	// MaxToolCalls bounds the agent's exploration budget.
	MaxToolCalls = 25

	// MaxAgentDuration is the wall-clock cap on one discovery run.
	MaxAgentDuration = 3 * time.Minute
)

// Investigator runs discovery and rediscovery.
type Investigator struct {
	client  llm.ChatClient // nil means fallback-only
	lineage LineageQuerier
	tables  repositories.TableRepository
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an Investigator. Pass a nil client to run fallback-only.
func New(client llm.ChatClient, lineageSvc LineageQuerier, tables repositories.TableRepository, logger *zap.Logger) *Investigator {
	return &Investigator{
		client:  client,
		lineage: lineageSvc,
		tables:  tables,
		logger:  logger.Named("investigator"),
		now:     time.Now,
	}
}

// Discover surveys the warehouse behind a connection and proposes tables
// to monitor. The agentic path runs when a tool-calling model is
// configured; any failure degrades to the deterministic walk.
func (inv *Investigator) Discover(ctx context.Context, conn warehouse.Connector, connection *models.Connection) (*models.DiscoveryReport, error) {
	if toolClient, ok := inv.client.(llm.ToolCallingClient); ok && toolClient != nil {
		report, err := inv.discoverWithAgent(ctx, toolClient, conn, connection)
		if err == nil {
			return report, nil
		}
		inv.logger.Warn("agentic discovery failed, using deterministic walk",
			zap.String("connection", connection.Name), zap.Error(err))
	}
	return inv.discoverDeterministic(ctx, conn, connection)
}

// agentAnswer is the JSON contract the agent's final message must satisfy.
type agentAnswer struct {
	Proposals []struct {
		Schema              string   `json:"schema"`
		Table               string   `json:"table"`
		Role                string   `json:"role"`
		RecommendedChecks   []string `json:"recommended_checks"`
		SuggestedSLAMinutes *int     `json:"suggested_sla_minutes"`
		Reasoning           string   `json:"reasoning"`
		Skip                bool     `json:"skip"`
	} `json:"proposals"`
	Concerns []string `json:"concerns"`
}

func (inv *Investigator) discoverWithAgent(ctx context.Context, client llm.ToolCallingClient, conn warehouse.Connector, connection *models.Connection) (*models.DiscoveryReport, error) {
	ctx, cancel := context.WithTimeout(ctx, MaxAgentDuration)
	defer cancel()

	tools := discoveryTools()
	exec := &toolExecutor{conn: conn, lineage: inv.lineage, logger: inv.logger}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.DiscoverySystemMessage},
		{Role: llm.RoleUser, Content: prompts.BuildDiscoveryPrompt(connection.Name, MaxToolCalls)},
	}

	toolCalls := 0
	var final string
	for {
		resp, err := client.GenerateWithTools(ctx, messages, tools, 0.2)
		if err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			final = resp.Content
			break
		}

		assistant := llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
		messages = append(messages, assistant)

		for _, tc := range resp.ToolCalls {
			toolCalls++
			if toolCalls > MaxToolCalls {
				messages = append(messages, llm.Message{
					Role:       llm.RoleTool,
					ToolCallID: tc.ID,
					Name:       tc.Name,
					Content:    `{"error": "tool budget exhausted; respond with your final JSON now"}`,
				})
				continue
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: tc.ID,
				Name:       tc.Name,
				Content:    exec.Execute(ctx, tc.Name, tc.Arguments),
			})
		}
	}

	answer, err := llm.ParseJSONResponse[agentAnswer](final)
	if err != nil {
		return nil, fmt.Errorf("agent final answer: %w", err)
	}
	if len(answer.Proposals) == 0 {
		return nil, fmt.Errorf("agent produced no proposals")
	}

	schemaSet := make(map[string]bool)
	report := &models.DiscoveryReport{
		ConnectionID:   connection.ID,
		ConnectionName: connection.Name,
		Concerns:       answer.Concerns,
		GeneratedAt:    inv.now().UTC(),
	}
	for _, p := range answer.Proposals {
		if p.Schema == "" || p.Table == "" {
			continue
		}
		schemaSet[p.Schema] = true
		report.Proposals = append(report.Proposals, models.TableProposal{
			Schema:              p.Schema,
			Table:               p.Table,
			FQN:                 strings.ToLower(p.Schema + "." + p.Table),
			Role:                normalizeRole(p.Role),
			RecommendedChecks:   p.RecommendedChecks,
			SuggestedSLAMinutes: p.SuggestedSLAMinutes,
			Reasoning:           p.Reasoning,
			Skip:                p.Skip,
		})
	}
	report.SchemasFound = sortedSetKeys(schemaSet)
	report.TotalTables = len(report.Proposals)

	inv.logger.Info("agentic discovery completed",
		zap.String("connection", connection.Name),
		zap.Int("proposals", report.TotalTables),
		zap.Int("tool_calls", toolCalls))
	return report, nil
}

// discoverDeterministic walks every schema and table and classifies each
// by name pattern. No LLM involved.
func (inv *Investigator) discoverDeterministic(ctx context.Context, conn warehouse.Connector, connection *models.Connection) (*models.DiscoveryReport, error) {
	schemas, err := conn.ListSchemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}

	report := &models.DiscoveryReport{
		ConnectionID:   connection.ID,
		ConnectionName: connection.Name,
		SchemasFound:   schemas,
		GeneratedAt:    inv.now().UTC(),
	}

	for _, schema := range schemas {
		tables, err := conn.ListTables(ctx, schema)
		if err != nil {
			report.Concerns = append(report.Concerns,
				fmt.Sprintf("schema %s not listable: %v", schema, err))
			continue
		}
		for _, table := range tables {
			columns, err := conn.FetchColumns(ctx, schema, table.Name)
			if err != nil {
				report.Concerns = append(report.Concerns,
					fmt.Sprintf("columns of %s.%s not readable: %v", schema, table.Name, err))
				columns = nil
			}
			report.Proposals = append(report.Proposals, ClassifyTable(schema, table.Name, columns))
		}
	}

	report.TotalTables = len(report.Proposals)
	inv.logger.Info("deterministic discovery completed",
		zap.String("connection", connection.Name),
		zap.Int("proposals", report.TotalTables))
	return report, nil
}

// Rediscover diffs the warehouse table set against the monitored set for
// one connection. Purely deterministic; emits new and dropped deltas in
// FQN order.
func (inv *Investigator) Rediscover(ctx context.Context, conn warehouse.Connector, connection *models.Connection) ([]models.TableDelta, error) {
	schemas, err := conn.ListSchemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}

	warehouseFQNs := make(map[string][2]string) // fqn -> (schema, table)
	for _, schema := range schemas {
		tables, err := conn.ListTables(ctx, schema)
		if err != nil {
			return nil, fmt.Errorf("list tables in %s: %w", schema, err)
		}
		for _, t := range tables {
			fqn := strings.ToLower(schema + "." + t.Name)
			warehouseFQNs[fqn] = [2]string{schema, t.Name}
		}
	}

	monitored, err := inv.tables.ListByConnection(ctx, connection.ID)
	if err != nil {
		return nil, fmt.Errorf("list monitored tables: %w", err)
	}
	monitoredFQNs := make(map[string]*models.MonitoredTable, len(monitored))
	for _, t := range monitored {
		monitoredFQNs[strings.ToLower(t.FQN())] = t
	}

	var deltas []models.TableDelta
	for fqn, st := range warehouseFQNs {
		if _, ok := monitoredFQNs[fqn]; !ok {
			deltas = append(deltas, models.TableDelta{
				Action: models.DeltaNew,
				Schema: st[0],
				Table:  st[1],
				FQN:    fqn,
			})
		}
	}
	for fqn, t := range monitoredFQNs {
		if _, ok := warehouseFQNs[fqn]; !ok {
			deltas = append(deltas, models.TableDelta{
				Action: models.DeltaDropped,
				Schema: t.SchemaName,
				Table:  t.TableName,
				FQN:    fqn,
			})
		}
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].FQN < deltas[j].FQN })
	return deltas, nil
}

func normalizeRole(role string) string {
	switch role {
	case models.RoleFact, models.RoleDimension, models.RoleStaging,
		models.RoleRaw, models.RoleSnapshot, models.RoleSystem:
		return role
	default:
		return models.RoleUnknown
	}
}

func sortedSetKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
