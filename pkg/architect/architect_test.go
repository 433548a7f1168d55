package architect

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/database"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/llm"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
)

type fakeLineage struct {
	downstream []models.LineageNode
}

func (f *fakeLineage) Upstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error) {
	return nil, nil
}
func (f *fakeLineage) Downstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error) {
	return f.downstream, nil
}
func (f *fakeLineage) BlastRadius(ctx context.Context, table string) (*models.BlastRadius, error) {
	tables := make([]string, 0, len(f.downstream))
	for _, n := range f.downstream {
		tables = append(tables, n.Table)
	}
	return &models.BlastRadius{AffectedTables: tables, Total: len(tables), MaxDepth: 1}, nil
}

type fakeAnomalyRepo struct{}

func (fakeAnomalyRepo) Insert(ctx context.Context, q database.Querier, a *models.Anomaly) error {
	return nil
}
func (fakeAnomalyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Anomaly, error) {
	return nil, nil
}
func (fakeAnomalyRepo) ListRecent(ctx context.Context, tableIDs []uuid.UUID, since time.Time) ([]*models.Anomaly, error) {
	return nil, nil
}

type fakeTableRepo struct{}

func (fakeTableRepo) Create(ctx context.Context, t *models.MonitoredTable) error { return nil }
func (fakeTableRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.MonitoredTable, error) {
	return nil, nil
}
func (fakeTableRepo) List(ctx context.Context, filter repositories.TableFilter) ([]*models.MonitoredTable, error) {
	return nil, nil
}
func (fakeTableRepo) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.MonitoredTable, error) {
	return nil, nil
}
func (fakeTableRepo) Update(ctx context.Context, t *models.MonitoredTable) error { return nil }
func (fakeTableRepo) Delete(ctx context.Context, id uuid.UUID) error             { return nil }

type fakeSnapshotRepo struct{}

func (fakeSnapshotRepo) Insert(ctx context.Context, q database.Querier, s *models.SchemaSnapshot) error {
	return nil
}
func (fakeSnapshotRepo) GetLatest(ctx context.Context, tableID uuid.UUID) (*models.SchemaSnapshot, error) {
	return nil, nil
}

func fixture(client llm.ChatClient) (*Architect, *models.Anomaly, *models.MonitoredTable) {
	lin := &fakeLineage{downstream: []models.LineageNode{
		{Table: "mart.revenue", Depth: 1, Confidence: 0.9},
	}}
	arch := New(client, lin, fakeAnomalyRepo{}, fakeTableRepo{}, fakeSnapshotRepo{}, zap.NewNop())

	table := &models.MonitoredTable{
		ID:         uuid.New(),
		SchemaName: "analytics",
		TableName:  "orders",
	}
	anomaly := &models.Anomaly{
		ID:       uuid.New(),
		TableID:  table.ID,
		Type:     models.AnomalyTypeSchemaDrift,
		Severity: models.SeverityCritical,
		Detail: models.SchemaDriftDetail{
			Changes: []models.SchemaChange{
				{ChangeType: models.ChangeColumnTypeChanged, Column: "price", FromType: "FLOAT", ToType: "VARCHAR(255)"},
			},
		},
		DetectedAt: time.Now().UTC(),
	}
	return arch, anomaly, table
}

const validDiagnosisJSON = `{
	"root_cause": "Upstream job changed the price column type.",
	"root_cause_table": "analytics.orders",
	"blast_radius": ["mart.revenue"],
	"severity": "critical",
	"confidence": 0.85,
	"recommendations": [
		{"action": "revert_schema", "description": "Revert price to FLOAT", "sql": "ALTER TABLE analytics.orders ALTER COLUMN price TYPE FLOAT", "priority": 1},
		{"action": "notify_team", "description": "Tell the analytics team", "sql": null, "priority": 2}
	]
}`

func TestDiagnoseWithoutClientUsesFallback(t *testing.T) {
	arch, anomaly, table := fixture(nil)

	result, err := arch.Diagnose(context.Background(), anomaly, table)
	require.NoError(t, err)

	d := result.Diagnosis
	assert.Equal(t, 0.0, d.Confidence)
	assert.Equal(t, anomaly.Severity, d.Severity)
	assert.Equal(t, "analytics.orders", d.RootCauseTable)
	assert.Equal(t, []string{"mart.revenue"}, d.BlastRadius)
	require.Len(t, d.Recommendations, 1)
	assert.Equal(t, models.ActionInvestigate, d.Recommendations[0].Action)
	assert.Equal(t, "Manual investigation required.", d.Recommendations[0].Description)
	assert.Nil(t, d.Recommendations[0].SQL)
	assert.Equal(t, 1, d.Recommendations[0].Priority)

	assert.Equal(t, []string{"mart.revenue"}, result.BlastRadius.AffectedTables)
}

func TestDiagnoseParsesToolOutput(t *testing.T) {
	mock := &llm.MockClient{
		ToolResponses: []*llm.ToolResponse{
			{ToolCalls: []llm.ToolCall{{ID: "1", Name: "submit_diagnosis", Arguments: validDiagnosisJSON}}},
		},
	}
	arch, anomaly, table := fixture(mock)

	result, err := arch.Diagnose(context.Background(), anomaly, table)
	require.NoError(t, err)

	d := result.Diagnosis
	assert.InDelta(t, 0.85, d.Confidence, 1e-9)
	assert.Equal(t, "analytics.orders", d.RootCauseTable)
	require.Len(t, d.Recommendations, 2)
	assert.Equal(t, models.ActionRevertSchema, d.Recommendations[0].Action, "ordered by priority")
}

func TestDiagnoseMalformedOnceThenValid(t *testing.T) {
	mock := &llm.MockClient{
		ToolResponses: []*llm.ToolResponse{
			{Content: "Sure! Here is my thinking but no JSON."},
			{Content: validDiagnosisJSON},
		},
	}
	arch, anomaly, table := fixture(mock)

	result, err := arch.Diagnose(context.Background(), anomaly, table)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, result.Diagnosis.Confidence, 1e-9,
		"one malformed response plus one strict re-prompt counts as a success")
}

func TestDiagnosePersistentFailureFallsBack(t *testing.T) {
	authErr := llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, nil)
	mock := &llm.MockClient{Errors: []error{authErr}}
	arch, anomaly, table := fixture(mock)

	result, err := arch.Diagnose(context.Background(), anomaly, table)
	require.NoError(t, err, "fallback must always succeed")
	assert.Equal(t, 0.0, result.Diagnosis.Confidence)
	require.Len(t, result.Diagnosis.Recommendations, 1)
	assert.Equal(t, models.ActionInvestigate, result.Diagnosis.Recommendations[0].Action)
}

func TestDiagnoseRejectsInvalidSeverity(t *testing.T) {
	bad := `{"root_cause": "x", "root_cause_table": "a.b", "blast_radius": [], "severity": "catastrophic", "confidence": 0.5, "recommendations": []}`
	mock := &llm.MockClient{
		ToolResponses: []*llm.ToolResponse{
			{Content: bad},
			{Content: bad},
		},
	}
	arch, anomaly, table := fixture(mock)

	result, err := arch.Diagnose(context.Background(), anomaly, table)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Diagnosis.Confidence, "invalid severity falls through to fallback")
}
