// Package executor turns a Diagnosis into an ordered Remediation plan.
// It is a pure transformation: no SQL is ever executed.
package executor

import (
	"fmt"
	"sort"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// Executor formats remediation plans.
type Executor struct {
	now func() time.Time
}

// New creates an Executor.
func New() *Executor {
	return &Executor{now: time.Now}
}

// Plan converts a diagnosis into a remediation plan. Actions keep the
// diagnosis ordering by priority; actions carrying SQL require operator
// approval, everything else is a manual step.
func (e *Executor) Plan(diagnosis *models.Diagnosis) *models.Remediation {
	recommendations := make([]models.Recommendation, len(diagnosis.Recommendations))
	copy(recommendations, diagnosis.Recommendations)
	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Priority < recommendations[j].Priority
	})

	actions := make([]models.RemediationAction, 0, len(recommendations))
	sqlCount := 0
	for _, rec := range recommendations {
		status := models.RemediationManual
		if rec.SQL != nil && *rec.SQL != "" {
			status = models.RemediationPendingApproval
			sqlCount++
		}
		actions = append(actions, models.RemediationAction{
			Type:        rec.Action,
			Description: rec.Description,
			SQL:         rec.SQL,
			Status:      status,
			Priority:    rec.Priority,
		})
	}

	return &models.Remediation{
		Actions:     actions,
		Summary:     summarize(len(actions), sqlCount),
		GeneratedAt: e.now().UTC(),
	}
}

func summarize(total, withSQL int) string {
	if total == 0 {
		return "No remediation actions proposed."
	}
	if withSQL == 0 {
		return fmt.Sprintf("%d manual action(s) proposed.", total)
	}
	return fmt.Sprintf("%d action(s) proposed, %d with SQL awaiting approval.", total, withSQL)
}
