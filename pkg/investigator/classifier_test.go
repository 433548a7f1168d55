package investigator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

func tsCol() []models.ColumnDef {
	return []models.ColumnDef{
		{Name: "id", Type: "INT", Ordinal: 1},
		{Name: "updated_at", Type: "TIMESTAMP", Nullable: true, Ordinal: 2},
	}
}

func noTsCol() []models.ColumnDef {
	return []models.ColumnDef{{Name: "id", Type: "INT", Ordinal: 1}}
}

func TestClassifyTable(t *testing.T) {
	tests := []struct {
		name     string
		schema   string
		table    string
		columns  []models.ColumnDef
		role     string
		checks   []string
		sla      *int
		skip     bool
	}{
		{
			name: "tmp table", schema: "public", table: "orders_tmp_2024", columns: noTsCol(),
			role: models.RoleSystem, checks: []string{}, skip: true,
		},
		{
			name: "backup table", schema: "public", table: "users_backup", columns: noTsCol(),
			role: models.RoleSystem, checks: []string{}, skip: true,
		},
		{
			name: "staging prefix", schema: "public", table: "stg_orders", columns: noTsCol(),
			role: models.RoleStaging, checks: []string{models.CheckSchema}, sla: intPtr(60),
		},
		{
			name: "staging schema", schema: "staging", table: "orders", columns: noTsCol(),
			role: models.RoleStaging, checks: []string{models.CheckSchema}, sla: intPtr(60),
		},
		{
			name: "raw prefix", schema: "public", table: "raw_events", columns: noTsCol(),
			role: models.RoleRaw, checks: []string{models.CheckSchema}, sla: intPtr(1440),
		},
		{
			name: "landing schema", schema: "landing", table: "events", columns: noTsCol(),
			role: models.RoleRaw, checks: []string{models.CheckSchema}, sla: intPtr(1440),
		},
		{
			name: "dimension with timestamp", schema: "mart", table: "dim_customers", columns: tsCol(),
			role: models.RoleDimension, checks: []string{models.CheckSchema, models.CheckFreshness}, sla: intPtr(360),
		},
		{
			name: "dimension without timestamp", schema: "mart", table: "dim_regions", columns: noTsCol(),
			role: models.RoleDimension, checks: []string{models.CheckSchema},
		},
		{
			name: "fact fct prefix", schema: "mart", table: "fct_orders", columns: tsCol(),
			role: models.RoleFact, checks: []string{models.CheckSchema, models.CheckFreshness}, sla: intPtr(360),
		},
		{
			name: "fact fact prefix", schema: "mart", table: "fact_sales", columns: noTsCol(),
			role: models.RoleFact, checks: []string{models.CheckSchema},
		},
		{
			name: "snapshot suffix", schema: "mart", table: "orders_snapshot", columns: tsCol(),
			role: models.RoleSnapshot, checks: []string{models.CheckSchema},
		},
		{
			name: "history marker", schema: "mart", table: "price_history", columns: noTsCol(),
			role: models.RoleSnapshot, checks: []string{models.CheckSchema},
		},
		{
			name: "unknown with timestamp", schema: "public", table: "users", columns: tsCol(),
			role: models.RoleUnknown, checks: []string{models.CheckSchema, models.CheckFreshness},
		},
		{
			name: "unknown without timestamp", schema: "public", table: "lookup", columns: noTsCol(),
			role: models.RoleUnknown, checks: []string{models.CheckSchema},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proposal := ClassifyTable(tt.schema, tt.table, tt.columns)
			assert.Equal(t, tt.role, proposal.Role)
			assert.Equal(t, tt.checks, proposal.RecommendedChecks)
			assert.Equal(t, tt.skip, proposal.Skip)
			if tt.sla == nil {
				assert.Nil(t, proposal.SuggestedSLAMinutes)
			} else {
				require.NotNil(t, proposal.SuggestedSLAMinutes)
				assert.Equal(t, *tt.sla, *proposal.SuggestedSLAMinutes)
			}
			assert.NotEmpty(t, proposal.Reasoning)
			assert.Equal(t, proposal.Schema+"."+proposal.Table, proposal.FQN)
		})
	}
}

func intPtr(i int) *int { return &i }
