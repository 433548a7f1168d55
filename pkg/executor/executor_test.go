package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestPlanOrdersByPriority(t *testing.T) {
	exec := New()
	diagnosis := &models.Diagnosis{
		Recommendations: []models.Recommendation{
			{Action: models.ActionNotifyTeam, Description: "tell the team", Priority: 2},
			{Action: models.ActionRevertSchema, Description: "revert", SQL: strPtr("ALTER TABLE t ALTER COLUMN price TYPE FLOAT"), Priority: 1},
			{Action: models.ActionInvestigate, Description: "dig in", Priority: 3},
		},
	}

	plan := exec.Plan(diagnosis)
	require.Len(t, plan.Actions, 3)
	assert.Equal(t, models.ActionRevertSchema, plan.Actions[0].Type)
	assert.Equal(t, models.ActionNotifyTeam, plan.Actions[1].Type)
	assert.Equal(t, models.ActionInvestigate, plan.Actions[2].Type)
	assert.False(t, plan.GeneratedAt.IsZero())
}

func TestPlanStatusByPresenceOfSQL(t *testing.T) {
	exec := New()
	plan := exec.Plan(&models.Diagnosis{
		Recommendations: []models.Recommendation{
			{Action: models.ActionAddCast, Description: "cast", SQL: strPtr("SELECT 1"), Priority: 1},
			{Action: models.ActionNotifyTeam, Description: "notify", Priority: 2},
			{Action: models.ActionPausePipeline, Description: "pause", SQL: strPtr(""), Priority: 3},
		},
	})

	require.Len(t, plan.Actions, 3)
	assert.Equal(t, models.RemediationPendingApproval, plan.Actions[0].Status)
	assert.Equal(t, models.RemediationManual, plan.Actions[1].Status)
	assert.Equal(t, models.RemediationManual, plan.Actions[2].Status, "empty SQL counts as manual")
}

func TestPlanEmptyDiagnosis(t *testing.T) {
	exec := New()
	plan := exec.Plan(&models.Diagnosis{})
	assert.Empty(t, plan.Actions)
	assert.Equal(t, "No remediation actions proposed.", plan.Summary)
}

func TestPlanSummaryCountsSQL(t *testing.T) {
	exec := New()
	plan := exec.Plan(&models.Diagnosis{
		Recommendations: []models.Recommendation{
			{Action: models.ActionAddCast, Description: "cast", SQL: strPtr("SELECT 1"), Priority: 1},
			{Action: models.ActionNotifyTeam, Description: "notify", Priority: 2},
		},
	})
	assert.Equal(t, "2 action(s) proposed, 1 with SQL awaiting approval.", plan.Summary)
}

func TestPlanDoesNotMutateDiagnosis(t *testing.T) {
	exec := New()
	diagnosis := &models.Diagnosis{
		Recommendations: []models.Recommendation{
			{Action: models.ActionInvestigate, Description: "b", Priority: 2},
			{Action: models.ActionNotifyTeam, Description: "a", Priority: 1},
		},
	}
	_ = exec.Plan(diagnosis)
	assert.Equal(t, 2, diagnosis.Recommendations[0].Priority, "input ordering preserved")
}
