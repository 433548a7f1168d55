package lineage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

// fakeLineageRepo is an in-memory LineageRepository with the production
// upsert semantics: max confidence, monotonic last_seen_at.
type fakeLineageRepo struct {
	edges map[[2]string]*models.LineageEdge
}

func newFakeLineageRepo() *fakeLineageRepo {
	return &fakeLineageRepo{edges: make(map[[2]string]*models.LineageEdge)}
}

func (f *fakeLineageRepo) Upsert(ctx context.Context, edge *models.LineageEdge) error {
	key := [2]string{edge.SourceTable, edge.TargetTable}
	if existing, ok := f.edges[key]; ok {
		if edge.LastSeenAt.After(existing.LastSeenAt) {
			existing.LastSeenAt = edge.LastSeenAt
		}
		if edge.Confidence > existing.Confidence {
			existing.Confidence = edge.Confidence
		}
		existing.QueryHash = edge.QueryHash
		*edge = *existing
		return nil
	}
	edge.ID = uuid.New()
	stored := *edge
	f.edges[key] = &stored
	return nil
}

func (f *fakeLineageRepo) ListFresh(ctx context.Context, seenSince time.Time) ([]*models.LineageEdge, error) {
	var result []*models.LineageEdge
	for _, e := range f.edges {
		if !e.LastSeenAt.Before(seenSince) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (f *fakeLineageRepo) ListAll(ctx context.Context) ([]*models.LineageEdge, error) {
	var result []*models.LineageEdge
	for _, e := range f.edges {
		result = append(result, e)
	}
	return result, nil
}

func (f *fakeLineageRepo) seed(source, target string, confidence float64, lastSeen time.Time) {
	f.edges[[2]string{source, target}] = &models.LineageEdge{
		ID:          uuid.New(),
		SourceTable: source,
		TargetTable: target,
		Confidence:  confidence,
		LastSeenAt:  lastSeen,
		FirstSeenAt: lastSeen,
	}
}

func newService(repo *fakeLineageRepo) *Service {
	return NewService(repo, zap.NewNop())
}

func TestIngestCreatesEdges(t *testing.T) {
	repo := newFakeLineageRepo()
	svc := newService(repo)

	stats, err := svc.Ingest(context.Background(), []warehouse.QueryLogEntry{
		{SQL: "INSERT INTO stg.orders SELECT * FROM raw.orders", ExecutedAt: time.Now()},
		{SQL: "not even sql"},
		{SQL: "SELECT 1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.QueriesSeen)
	assert.Equal(t, 1, stats.EdgesUpserted)
	assert.Equal(t, 2, stats.Skipped)

	edge, ok := repo.edges[[2]string{"raw.orders", "stg.orders"}]
	require.True(t, ok)
	assert.Equal(t, 1.0, edge.Confidence)
	assert.NotEmpty(t, edge.QueryHash)
}

func TestIngestReobservationKeepsMaxConfidence(t *testing.T) {
	repo := newFakeLineageRepo()
	svc := newService(repo)

	direct := "INSERT INTO stg.orders SELECT * FROM raw.orders"
	nested := "INSERT INTO stg.orders SELECT * FROM (SELECT * FROM raw.orders) x"

	_, err := svc.Ingest(context.Background(), []warehouse.QueryLogEntry{{SQL: direct, ExecutedAt: time.Now()}})
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), []warehouse.QueryLogEntry{{SQL: nested, ExecutedAt: time.Now()}})
	require.NoError(t, err)

	edge := repo.edges[[2]string{"raw.orders", "stg.orders"}]
	assert.Equal(t, 1.0, edge.Confidence, "confidence never decreases on re-observation")
}

func TestBlastRadiusSuppressesStaleEdges(t *testing.T) {
	repo := newFakeLineageRepo()
	svc := newService(repo)
	now := time.Now().UTC()

	// raw.x -> stg.x last seen 31 days ago (stale); stg.x -> mart.x today.
	repo.seed("raw.x", "stg.x", 1.0, now.Add(-31*24*time.Hour))
	repo.seed("stg.x", "mart.x", 1.0, now)

	fromRaw, err := svc.BlastRadius(context.Background(), "raw.x")
	require.NoError(t, err)
	assert.Equal(t, 0, fromRaw.Total, "stale edge must be suppressed")

	fromStg, err := svc.BlastRadius(context.Background(), "stg.x")
	require.NoError(t, err)
	assert.Equal(t, []string{"mart.x"}, fromStg.AffectedTables)
	assert.True(t, fromStg.HasTerminalConsumers)
}

func TestTraverseConfidenceProductAndDepth(t *testing.T) {
	repo := newFakeLineageRepo()
	svc := newService(repo)
	now := time.Now().UTC()

	repo.seed("a.t", "b.t", 0.8, now)
	repo.seed("b.t", "c.t", 0.5, now)

	nodes, err := svc.Downstream(context.Background(), "a.t", 10, 0)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	byTable := map[string]models.LineageNode{}
	for _, n := range nodes {
		byTable[n.Table] = n
	}
	assert.Equal(t, 1, byTable["b.t"].Depth)
	assert.InDelta(t, 0.8, byTable["b.t"].Confidence, 1e-9)
	assert.Equal(t, 2, byTable["c.t"].Depth)
	assert.InDelta(t, 0.4, byTable["c.t"].Confidence, 1e-9)
}

func TestTraverseMinConfidenceFilter(t *testing.T) {
	repo := newFakeLineageRepo()
	svc := newService(repo)
	now := time.Now().UTC()

	repo.seed("a.t", "b.t", 0.9, now)
	repo.seed("b.t", "c.t", 0.3, now)

	nodes, err := svc.Downstream(context.Background(), "a.t", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "b.t", nodes[0].Table)
}

func TestTraverseCycleGuard(t *testing.T) {
	repo := newFakeLineageRepo()
	svc := newService(repo)
	now := time.Now().UTC()

	repo.seed("a.t", "b.t", 1.0, now)
	repo.seed("b.t", "a.t", 1.0, now)
	repo.seed("c.t", "c.t", 1.0, now) // self edge

	nodes, err := svc.Downstream(context.Background(), "a.t", 10, 0)
	require.NoError(t, err)
	assert.Len(t, nodes, 1, "cycle must not inflate the result")

	self, err := svc.BlastRadius(context.Background(), "c.t")
	require.NoError(t, err)
	assert.Equal(t, 0, self.Total, "self edge never reaches itself")
}

func TestUpstreamMirrorsDownstream(t *testing.T) {
	repo := newFakeLineageRepo()
	svc := newService(repo)
	now := time.Now().UTC()

	repo.seed("raw.a", "mart.b", 0.7, now)

	up, err := svc.Upstream(context.Background(), "mart.b", 5, 0)
	require.NoError(t, err)
	require.Len(t, up, 1)
	assert.Equal(t, "raw.a", up[0].Table)
}

func TestPathShortestByHops(t *testing.T) {
	repo := newFakeLineageRepo()
	svc := newService(repo)
	now := time.Now().UTC()

	// Two routes a->d: a->b->c->d (high confidence) and a->d (low).
	repo.seed("a.t", "b.t", 1.0, now)
	repo.seed("b.t", "c.t", 1.0, now)
	repo.seed("c.t", "d.t", 1.0, now)
	repo.seed("a.t", "d.t", 0.6, now)

	path, err := svc.Path(context.Background(), "a.t", "d.t")
	require.NoError(t, err)
	require.Len(t, path, 2, "shortest path by hop count wins")
	assert.Equal(t, "a.t", path[0].Table)
	assert.Equal(t, "d.t", path[1].Table)
}

func TestPathUnreachable(t *testing.T) {
	repo := newFakeLineageRepo()
	svc := newService(repo)
	repo.seed("a.t", "b.t", 1.0, time.Now().UTC())

	path, err := svc.Path(context.Background(), "b.t", "a.t")
	require.NoError(t, err)
	assert.Nil(t, path)
}

func TestGraphListsNonStaleOnly(t *testing.T) {
	repo := newFakeLineageRepo()
	svc := newService(repo)
	now := time.Now().UTC()

	repo.seed("a.t", "b.t", 1.0, now)
	repo.seed("x.t", "y.t", 1.0, now.Add(-40*24*time.Hour))

	graph, err := svc.Graph(context.Background())
	require.NoError(t, err)
	assert.Len(t, graph.Edges, 1)
	assert.Equal(t, []string{"a.t", "b.t"}, graph.Nodes)
}
