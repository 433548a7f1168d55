// Package prompts builds the LLM prompts used by the Architect and the
// Investigator.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// DiagnosisSystemMessage frames the Architect's role.
const DiagnosisSystemMessage = `You are a data reliability engineer diagnosing anomalies in an analytical warehouse. You are given an anomaly, the lineage neighborhood of the affected table, recent anomaly history, and table metadata. Determine the most likely root cause, the blast radius, and an ordered remediation plan. Be conservative: only include downstream tables you believe are actually affected, and only propose SQL you are confident in.`

// DiagnosisContext carries everything the Architect passes to the model.
type DiagnosisContext struct {
	Anomaly       *models.Anomaly
	Table         *models.MonitoredTable
	Upstream      []models.LineageNode
	Downstream    []models.LineageNode
	History       []*models.Anomaly
	Columns       []models.ColumnDef
	HistoryWindow time.Duration
}

// BuildDiagnosisPrompt renders the diagnosis request. The response format
// section mirrors the Diagnosis JSON contract for providers without native
// function calling.
func BuildDiagnosisPrompt(dc *DiagnosisContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Anomaly Diagnosis Request\n\n")

	prompt.WriteString("## Anomaly\n\n")
	detailJSON, _ := models.MarshalDetail(dc.Anomaly.Detail)
	fmt.Fprintf(&prompt, "- Type: %s\n- Table: %s\n- Severity: %s\n- Detected at: %s\n- Detail: %s\n\n",
		dc.Anomaly.Type, dc.Table.FQN(), dc.Anomaly.Severity,
		dc.Anomaly.DetectedAt.Format(time.RFC3339), string(detailJSON))

	prompt.WriteString("## Lineage\n\n")
	writeNodes(&prompt, "Upstream", dc.Upstream)
	writeNodes(&prompt, "Downstream", dc.Downstream)

	fmt.Fprintf(&prompt, "## Recent anomaly history (last %d days, this table and 1-hop neighbors)\n\n",
		int(dc.HistoryWindow.Hours()/24))
	if len(dc.History) == 0 {
		prompt.WriteString("No prior anomalies in the window.\n\n")
	} else {
		for _, a := range dc.History {
			fmt.Fprintf(&prompt, "- %s: %s severity=%s\n",
				a.DetectedAt.Format(time.RFC3339), a.Type, a.Severity)
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Table columns\n\n")
	for _, c := range dc.Columns {
		nullable := "NOT NULL"
		if c.Nullable {
			nullable = "NULL"
		}
		fmt.Fprintf(&prompt, "- %s %s %s\n", c.Name, c.Type, nullable)
	}
	prompt.WriteString("\n")

	prompt.WriteString(diagnosisResponseFormat)
	return prompt.String()
}

func writeNodes(prompt *strings.Builder, label string, nodes []models.LineageNode) {
	fmt.Fprintf(prompt, "### %s\n", label)
	if len(nodes) == 0 {
		prompt.WriteString("(none)\n\n")
		return
	}
	for _, n := range nodes {
		fmt.Fprintf(prompt, "- %s (depth %d, confidence %.2f)\n", n.Table, n.Depth, n.Confidence)
	}
	prompt.WriteString("\n")
}

const diagnosisResponseFormat = `## Response format

Respond with ONLY a JSON object of this exact shape:

{
  "root_cause": "one-paragraph explanation",
  "root_cause_table": "schema.table",
  "blast_radius": ["schema.table", ...],
  "severity": "critical|high|medium|low",
  "confidence": 0.0,
  "recommendations": [
    {
      "action": "revert_schema|add_cast|notify_team|pause_pipeline|investigate",
      "description": "what to do",
      "sql": "executable SQL or null",
      "priority": 1
    }
  ]
}
`

// StrictReprompt asks the model to correct malformed structured output.
// Used once after a format failure before falling back.
func StrictReprompt(malformed string) string {
	return fmt.Sprintf(`Your previous response was not valid JSON matching the required schema. Respond again with ONLY the JSON object, no prose, no markdown fences.

Previous response:
%s`, malformed)
}

// DiagnosisToolParameters returns the function-calling contract enforcing
// the Diagnosis shape for providers with native tools.
func DiagnosisToolParameters() map[string]any {
	recommendation := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{
					models.ActionRevertSchema, models.ActionAddCast,
					models.ActionNotifyTeam, models.ActionPausePipeline,
					models.ActionInvestigate,
				},
			},
			"description": map[string]any{"type": "string"},
			"sql":         map[string]any{"type": []string{"string", "null"}},
			"priority":    map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []string{"action", "description", "priority"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"root_cause":       map[string]any{"type": "string"},
			"root_cause_table": map[string]any{"type": "string"},
			"blast_radius":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"severity": map[string]any{
				"type": "string",
				"enum": []string{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow},
			},
			"confidence":      map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"recommendations": map[string]any{"type": "array", "items": recommendation},
		},
		"required": []string{"root_cause", "root_cause_table", "blast_radius", "severity", "confidence", "recommendations"},
	}
}

// MarshalForPrompt renders v as indented JSON for prompt embedding.
func MarshalForPrompt(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
