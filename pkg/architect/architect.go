// Package architect produces a Diagnosis for an anomaly: a primary LLM
// path with retries, and a deterministic rule-based fallback that always
// succeeds.
package architect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/llm"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/prompts"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/retry"
)

const (
	// lineageDepth bounds the neighborhood passed to the model.
	lineageDepth = 3

	// lineageMinConfidence filters noise edges out of the prompt.
	lineageMinConfidence = 0.5

	// DefaultHistoryWindow is how far back anomaly history reaches.
	DefaultHistoryWindow = 30 * 24 * time.Hour
)

// LineageQuerier is the slice of the lineage engine the Architect needs.
type LineageQuerier interface {
	Upstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error)
	Downstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error)
	BlastRadius(ctx context.Context, table string) (*models.BlastRadius, error)
}

// Architect diagnoses anomalies.
type Architect struct {
	client        llm.ChatClient // nil means fallback-only
	lineage       LineageQuerier
	anomalies     repositories.AnomalyRepository
	tables        repositories.TableRepository
	snapshots     repositories.SnapshotRepository
	historyWindow time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// New creates an Architect. Pass a nil client to run fallback-only.
func New(
	client llm.ChatClient,
	lineageSvc LineageQuerier,
	anomalies repositories.AnomalyRepository,
	tables repositories.TableRepository,
	snapshots repositories.SnapshotRepository,
	logger *zap.Logger,
) *Architect {
	return &Architect{
		client:        client,
		lineage:       lineageSvc,
		anomalies:     anomalies,
		tables:        tables,
		snapshots:     snapshots,
		historyWindow: DefaultHistoryWindow,
		logger:        logger.Named("architect"),
		now:           time.Now,
	}
}

// Result bundles the diagnosis with the lineage blast radius the
// orchestrator caches on the incident.
type Result struct {
	Diagnosis   *models.Diagnosis
	BlastRadius *models.BlastRadius
}

// Diagnose runs the primary LLM path and falls through to the rule-based
// fallback when the model is unavailable, keeps failing, or emits
// malformed output twice.
func (a *Architect) Diagnose(ctx context.Context, anomaly *models.Anomaly, table *models.MonitoredTable) (*Result, error) {
	radius := a.blastRadiusOrEmpty(ctx, table.FQN())

	if a.client == nil {
		return &Result{Diagnosis: a.fallback(anomaly, table, radius), BlastRadius: radius}, nil
	}

	dc, err := a.gatherContext(ctx, anomaly, table)
	if err != nil {
		a.logger.Warn("failed to gather diagnosis context, using fallback",
			zap.String("table", table.FQN()), zap.Error(err))
		return &Result{Diagnosis: a.fallback(anomaly, table, radius), BlastRadius: radius}, nil
	}

	diagnosis, err := retry.DoWithResult(ctx, retry.LLMConfig(), func() (*models.Diagnosis, error) {
		return a.diagnoseOnce(ctx, dc)
	})
	if err != nil {
		a.logger.Warn("LLM diagnosis exhausted retries, using fallback",
			zap.String("table", table.FQN()), zap.Error(err))
		return &Result{Diagnosis: a.fallback(anomaly, table, radius), BlastRadius: radius}, nil
	}

	return &Result{Diagnosis: diagnosis, BlastRadius: radius}, nil
}

// diagnoseOnce is a single model attempt, with one strict re-prompt on
// malformed structured output.
func (a *Architect) diagnoseOnce(ctx context.Context, dc *prompts.DiagnosisContext) (*models.Diagnosis, error) {
	prompt := prompts.BuildDiagnosisPrompt(dc)

	if toolClient, ok := a.client.(llm.ToolCallingClient); ok {
		return a.diagnoseWithTools(ctx, toolClient, prompt)
	}

	response, err := a.client.GenerateResponse(ctx, prompt, prompts.DiagnosisSystemMessage, 0.2)
	if err != nil {
		return nil, err
	}

	diagnosis, parseErr := parseDiagnosis(response)
	if parseErr == nil {
		return diagnosis, nil
	}

	// One strict re-prompt before giving up on this attempt.
	a.logger.Debug("malformed diagnosis output, re-prompting", zap.Error(parseErr))
	response, err = a.client.GenerateResponse(ctx,
		prompts.StrictReprompt(response), prompts.DiagnosisSystemMessage, 0.0)
	if err != nil {
		return nil, err
	}
	return parseDiagnosis(response)
}

func (a *Architect) diagnoseWithTools(ctx context.Context, client llm.ToolCallingClient, prompt string) (*models.Diagnosis, error) {
	tools := []llm.ToolDefinition{{
		Name:        "submit_diagnosis",
		Description: "Submit the structured diagnosis for the anomaly",
		Parameters:  prompts.DiagnosisToolParameters(),
	}}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.DiagnosisSystemMessage},
		{Role: llm.RoleUser, Content: prompt},
	}

	resp, err := client.GenerateWithTools(ctx, messages, tools, 0.2)
	if err != nil {
		return nil, err
	}

	raw := resp.Content
	for _, tc := range resp.ToolCalls {
		if tc.Name == "submit_diagnosis" {
			raw = tc.Arguments
			break
		}
	}

	diagnosis, parseErr := parseDiagnosis(raw)
	if parseErr == nil {
		return diagnosis, nil
	}

	a.logger.Debug("malformed tool diagnosis, re-prompting", zap.Error(parseErr))
	messages = append(messages,
		llm.Message{Role: llm.RoleAssistant, Content: raw},
		llm.Message{Role: llm.RoleUser, Content: prompts.StrictReprompt(raw)})
	resp, err = client.GenerateWithTools(ctx, messages, tools, 0.0)
	if err != nil {
		return nil, err
	}
	raw = resp.Content
	for _, tc := range resp.ToolCalls {
		if tc.Name == "submit_diagnosis" {
			raw = tc.Arguments
			break
		}
	}
	return parseDiagnosis(raw)
}

// parseDiagnosis decodes and validates a model response.
func parseDiagnosis(raw string) (*models.Diagnosis, error) {
	jsonStr, err := llm.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var d models.Diagnosis
	if err := json.Unmarshal([]byte(jsonStr), &d); err != nil {
		return nil, llm.NewError(llm.ErrorTypeFormat, "diagnosis does not match schema", false, err)
	}

	if d.RootCause == "" || d.RootCauseTable == "" {
		return nil, llm.NewError(llm.ErrorTypeFormat, "diagnosis missing root cause", false, nil)
	}
	switch d.Severity {
	case models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow:
	default:
		return nil, llm.NewError(llm.ErrorTypeFormat, fmt.Sprintf("invalid severity %q", d.Severity), false, nil)
	}

	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	if d.BlastRadius == nil {
		d.BlastRadius = []string{}
	}

	sort.SliceStable(d.Recommendations, func(i, j int) bool {
		return d.Recommendations[i].Priority < d.Recommendations[j].Priority
	})
	return &d, nil
}

// gatherContext collects lineage, history, and metadata for the prompt.
func (a *Architect) gatherContext(ctx context.Context, anomaly *models.Anomaly, table *models.MonitoredTable) (*prompts.DiagnosisContext, error) {
	upstream, err := a.lineage.Upstream(ctx, table.FQN(), lineageDepth, lineageMinConfidence)
	if err != nil {
		return nil, fmt.Errorf("upstream lineage: %w", err)
	}
	downstream, err := a.lineage.Downstream(ctx, table.FQN(), lineageDepth, lineageMinConfidence)
	if err != nil {
		return nil, fmt.Errorf("downstream lineage: %w", err)
	}

	history, err := a.neighborHistory(ctx, table, upstream, downstream)
	if err != nil {
		return nil, err
	}

	var columns []models.ColumnDef
	if snapshot, err := a.snapshots.GetLatest(ctx, table.ID); err == nil && snapshot != nil {
		columns = snapshot.Columns
	}

	return &prompts.DiagnosisContext{
		Anomaly:       anomaly,
		Table:         table,
		Upstream:      upstream,
		Downstream:    downstream,
		History:       history,
		Columns:       columns,
		HistoryWindow: a.historyWindow,
	}, nil
}

// neighborHistory loads recent anomalies for the table and its monitored
// 1-hop lineage neighbors.
func (a *Architect) neighborHistory(ctx context.Context, table *models.MonitoredTable, upstream, downstream []models.LineageNode) ([]*models.Anomaly, error) {
	neighborFQNs := map[string]bool{}
	for _, n := range upstream {
		if n.Depth == 1 {
			neighborFQNs[n.Table] = true
		}
	}
	for _, n := range downstream {
		if n.Depth == 1 {
			neighborFQNs[n.Table] = true
		}
	}

	ids := []uuid.UUID{table.ID}
	if len(neighborFQNs) > 0 {
		all, err := a.tables.List(ctx, repositories.TableFilter{})
		if err != nil {
			return nil, fmt.Errorf("list tables for history: %w", err)
		}
		for _, t := range all {
			if t.ID != table.ID && neighborFQNs[t.FQN()] {
				ids = append(ids, t.ID)
			}
		}
	}

	since := a.now().UTC().Add(-a.historyWindow)
	return a.anomalies.ListRecent(ctx, ids, since)
}

// blastRadiusOrEmpty degrades to an empty radius on lineage failure so the
// fallback never errors.
func (a *Architect) blastRadiusOrEmpty(ctx context.Context, fqn string) *models.BlastRadius {
	radius, err := a.lineage.BlastRadius(ctx, fqn)
	if err != nil {
		a.logger.Warn("blast radius query failed, degrading to empty",
			zap.String("table", fqn), zap.Error(err))
		return &models.BlastRadius{AffectedTables: []string{}}
	}
	return radius
}

// fallback is the deterministic diagnosis: lineage downstream as blast
// radius, the anomaly's own severity, zero confidence, and a single
// manual-investigation recommendation.
func (a *Architect) fallback(anomaly *models.Anomaly, table *models.MonitoredTable, radius *models.BlastRadius) *models.Diagnosis {
	return &models.Diagnosis{
		RootCause:      fmt.Sprintf("Automatic diagnosis unavailable for %s on %s.", anomaly.Type, table.FQN()),
		RootCauseTable: table.FQN(),
		BlastRadius:    radius.AffectedTables,
		Severity:       anomaly.Severity,
		Confidence:     0.0,
		Recommendations: []models.Recommendation{{
			Action:      models.ActionInvestigate,
			Description: "Manual investigation required.",
			SQL:         nil,
			Priority:    1,
		}},
	}
}
