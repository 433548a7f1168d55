package investigator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/llm"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

// fakeConnector serves a canned schema layout.
type fakeConnector struct {
	schemas map[string][]warehouse.TableInfo
	columns map[string][]models.ColumnDef // "schema.table" key
}

func (f *fakeConnector) ListSchemas(ctx context.Context) ([]string, error) {
	var names []string
	for s := range f.schemas {
		names = append(names, s)
	}
	return names, nil
}

func (f *fakeConnector) ListTables(ctx context.Context, schema string) ([]warehouse.TableInfo, error) {
	return f.schemas[schema], nil
}

func (f *fakeConnector) FetchColumns(ctx context.Context, schema, table string) ([]models.ColumnDef, error) {
	return f.columns[schema+"."+table], nil
}

func (f *fakeConnector) FetchLastUpdateTime(ctx context.Context, schema, table string) (*time.Time, error) {
	return nil, nil
}

func (f *fakeConnector) ExtractQueryLog(ctx context.Context, since time.Time, limit int) ([]warehouse.QueryLogEntry, error) {
	return nil, nil
}

func (f *fakeConnector) TestConnection(ctx context.Context) error { return nil }
func (f *fakeConnector) Dialect() string                          { return "fake" }
func (f *fakeConnector) Close() error                             { return nil }

// fakeTableRepo is an in-memory TableRepository.
type fakeTableRepo struct {
	tables []*models.MonitoredTable
}

func (f *fakeTableRepo) Create(ctx context.Context, t *models.MonitoredTable) error {
	t.ID = uuid.New()
	f.tables = append(f.tables, t)
	return nil
}
func (f *fakeTableRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.MonitoredTable, error) {
	return nil, nil
}
func (f *fakeTableRepo) List(ctx context.Context, filter repositories.TableFilter) ([]*models.MonitoredTable, error) {
	return f.tables, nil
}
func (f *fakeTableRepo) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.MonitoredTable, error) {
	return f.tables, nil
}
func (f *fakeTableRepo) Update(ctx context.Context, t *models.MonitoredTable) error { return nil }
func (f *fakeTableRepo) Delete(ctx context.Context, id uuid.UUID) error             { return nil }

type noLineage struct{}

func (noLineage) Upstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error) {
	return nil, nil
}
func (noLineage) Downstream(ctx context.Context, table string, depth int, minConfidence float64) ([]models.LineageNode, error) {
	return nil, nil
}

func connection() *models.Connection {
	return &models.Connection{ID: uuid.New(), Name: "warehouse-1", Dialect: "fake"}
}

func TestRediscoverEmitsNewDelta(t *testing.T) {
	conn := &fakeConnector{
		schemas: map[string][]warehouse.TableInfo{
			"public": {
				{Schema: "public", Name: "a", Kind: warehouse.KindTable},
				{Schema: "public", Name: "b", Kind: warehouse.KindTable},
			},
		},
	}
	repo := &fakeTableRepo{}
	require.NoError(t, repo.Create(context.Background(), &models.MonitoredTable{
		SchemaName: "public", TableName: "a",
	}))

	inv := New(nil, noLineage{}, repo, zap.NewNop())
	deltas, err := inv.Rediscover(context.Background(), conn, connection())
	require.NoError(t, err)

	require.Len(t, deltas, 1)
	assert.Equal(t, models.DeltaNew, deltas[0].Action)
	assert.Equal(t, "public.b", deltas[0].FQN)
	assert.Nil(t, deltas[0].Proposal)
}

func TestRediscoverEmitsDroppedDelta(t *testing.T) {
	conn := &fakeConnector{
		schemas: map[string][]warehouse.TableInfo{
			"public": {{Schema: "public", Name: "a", Kind: warehouse.KindTable}},
		},
	}
	repo := &fakeTableRepo{}
	for _, name := range []string{"a", "gone"} {
		require.NoError(t, repo.Create(context.Background(), &models.MonitoredTable{
			SchemaName: "public", TableName: name,
		}))
	}

	inv := New(nil, noLineage{}, repo, zap.NewNop())
	deltas, err := inv.Rediscover(context.Background(), conn, connection())
	require.NoError(t, err)

	require.Len(t, deltas, 1)
	assert.Equal(t, models.DeltaDropped, deltas[0].Action)
	assert.Equal(t, "public.gone", deltas[0].FQN)
}

func TestRediscoverNoDeltasWhenInSync(t *testing.T) {
	conn := &fakeConnector{
		schemas: map[string][]warehouse.TableInfo{
			"public": {{Schema: "public", Name: "a", Kind: warehouse.KindTable}},
		},
	}
	repo := &fakeTableRepo{}
	require.NoError(t, repo.Create(context.Background(), &models.MonitoredTable{
		SchemaName: "public", TableName: "a",
	}))

	inv := New(nil, noLineage{}, repo, zap.NewNop())
	deltas, err := inv.Rediscover(context.Background(), conn, connection())
	require.NoError(t, err)
	assert.Empty(t, deltas)
}

func TestRediscoverSortedByFQN(t *testing.T) {
	conn := &fakeConnector{
		schemas: map[string][]warehouse.TableInfo{
			"public": {
				{Schema: "public", Name: "zeta", Kind: warehouse.KindTable},
				{Schema: "public", Name: "alpha", Kind: warehouse.KindTable},
			},
		},
	}
	inv := New(nil, noLineage{}, &fakeTableRepo{}, zap.NewNop())
	deltas, err := inv.Rediscover(context.Background(), conn, connection())
	require.NoError(t, err)

	require.Len(t, deltas, 2)
	assert.Equal(t, "public.alpha", deltas[0].FQN)
	assert.Equal(t, "public.zeta", deltas[1].FQN)
}

func TestDiscoverDeterministicFallback(t *testing.T) {
	conn := &fakeConnector{
		schemas: map[string][]warehouse.TableInfo{
			"mart": {
				{Schema: "mart", Name: "fct_orders", Kind: warehouse.KindTable},
				{Schema: "mart", Name: "scratch_tmp", Kind: warehouse.KindTable},
			},
		},
		columns: map[string][]models.ColumnDef{
			"mart.fct_orders": {
				{Name: "id", Type: "INT", Ordinal: 1},
				{Name: "updated_at", Type: "TIMESTAMP", Nullable: true, Ordinal: 2},
			},
		},
	}

	inv := New(nil, noLineage{}, &fakeTableRepo{}, zap.NewNop())
	report, err := inv.Discover(context.Background(), conn, connection())
	require.NoError(t, err)

	assert.Equal(t, "warehouse-1", report.ConnectionName)
	assert.Equal(t, 2, report.TotalTables)

	byTable := map[string]models.TableProposal{}
	for _, p := range report.Proposals {
		byTable[p.Table] = p
	}
	assert.Equal(t, models.RoleFact, byTable["fct_orders"].Role)
	assert.False(t, byTable["fct_orders"].Skip)
	assert.Equal(t, models.RoleSystem, byTable["scratch_tmp"].Role)
	assert.True(t, byTable["scratch_tmp"].Skip)
}

func TestDiscoverAgentPath(t *testing.T) {
	conn := &fakeConnector{
		schemas: map[string][]warehouse.TableInfo{
			"public": {{Schema: "public", Name: "orders", Kind: warehouse.KindTable}},
		},
	}

	mock := &llm.MockClient{
		ToolResponses: []*llm.ToolResponse{
			{
				ToolCalls: []llm.ToolCall{{ID: "1", Name: "list_warehouse_schemas", Arguments: "{}"}},
			},
			{
				Content: `{"proposals": [{"schema": "public", "table": "orders", "role": "fact",
					"recommended_checks": ["schema", "freshness"], "suggested_sla_minutes": 360,
					"reasoning": "order event stream", "skip": false}],
					"concerns": ["no lineage observed yet"]}`,
			},
		},
	}

	inv := New(mock, noLineage{}, &fakeTableRepo{}, zap.NewNop())
	report, err := inv.Discover(context.Background(), conn, connection())
	require.NoError(t, err)

	require.Len(t, report.Proposals, 1)
	p := report.Proposals[0]
	assert.Equal(t, "public.orders", p.FQN)
	assert.Equal(t, models.RoleFact, p.Role)
	require.NotNil(t, p.SuggestedSLAMinutes)
	assert.Equal(t, 360, *p.SuggestedSLAMinutes)
	assert.Equal(t, []string{"no lineage observed yet"}, report.Concerns)
	assert.Equal(t, []string{"public"}, report.SchemasFound)
}

func TestDiscoverAgentFailureFallsBack(t *testing.T) {
	conn := &fakeConnector{
		schemas: map[string][]warehouse.TableInfo{
			"public": {{Schema: "public", Name: "orders", Kind: warehouse.KindTable}},
		},
	}

	mock := &llm.MockClient{
		ToolResponses: []*llm.ToolResponse{
			{Content: "I refuse to answer with JSON."},
		},
	}

	inv := New(mock, noLineage{}, &fakeTableRepo{}, zap.NewNop())
	report, err := inv.Discover(context.Background(), conn, connection())
	require.NoError(t, err)
	require.Len(t, report.Proposals, 1, "deterministic fallback still proposes")
	assert.Equal(t, models.RoleUnknown, report.Proposals[0].Role)
}
