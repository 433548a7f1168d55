package investigator

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// Role SLA suggestions, in minutes.
const (
	slaStaging   = 60
	slaRaw       = 1440
	slaFactDim   = 360
)

// timestampColumns are names whose presence suggests freshness is checkable.
var timestampColumns = []string{
	"updated_at", "modified_at", "last_updated", "last_modified",
	"created_at", "loaded_at", "ingested_at", "_loaded_at",
}

// systemMarkers flag scratch/backup tables that should never be monitored.
var systemMarkers = []string{"_tmp", "_temp", "_test", "_backup"}

// ClassifyTable assigns a role and monitoring recommendation to one table
// by name pattern. This is the deterministic fallback classifier; the LLM
// path produces the same proposal shape.
func ClassifyTable(schema, table string, columns []models.ColumnDef) models.TableProposal {
	proposal := models.TableProposal{
		Schema:  schema,
		Table:   table,
		FQN:     strings.ToLower(schema + "." + table),
		Columns: columns,
	}

	name := strings.ToLower(table)
	schemaLower := strings.ToLower(schema)
	hasTimestamp := hasTimestampColumn(columns)

	switch {
	case containsAny(name, systemMarkers):
		proposal.Role = models.RoleSystem
		proposal.RecommendedChecks = []string{}
		proposal.Skip = true
		proposal.Reasoning = fmt.Sprintf("%s looks like a scratch or backup table; monitoring it would produce noise.", table)

	case strings.HasPrefix(name, "stg_") || schemaLower == "staging" || schemaLower == "stg":
		proposal.Role = models.RoleStaging
		proposal.RecommendedChecks = []string{models.CheckSchema}
		sla := slaStaging
		proposal.SuggestedSLAMinutes = &sla
		proposal.Reasoning = fmt.Sprintf("%s is a staging model; schema stability matters and loads are expected hourly.", table)

	case strings.HasPrefix(name, "raw_") || schemaLower == "raw" || schemaLower == "landing":
		proposal.Role = models.RoleRaw
		proposal.RecommendedChecks = []string{models.CheckSchema}
		sla := slaRaw
		proposal.SuggestedSLAMinutes = &sla
		proposal.Reasoning = fmt.Sprintf("%s is raw landed data; daily loads are typical.", table)

	case strings.HasPrefix(name, "dim_"):
		proposal.Role = models.RoleDimension
		proposal.RecommendedChecks = checksWithOptionalFreshness(hasTimestamp)
		if hasTimestamp {
			sla := slaFactDim
			proposal.SuggestedSLAMinutes = &sla
		}
		proposal.Reasoning = fmt.Sprintf("%s is a dimension describing %s records.",
			table, inflection.Singular(strings.TrimPrefix(name, "dim_")))

	case strings.HasPrefix(name, "fct_") || strings.HasPrefix(name, "fact_"):
		proposal.Role = models.RoleFact
		proposal.RecommendedChecks = checksWithOptionalFreshness(hasTimestamp)
		if hasTimestamp {
			sla := slaFactDim
			proposal.SuggestedSLAMinutes = &sla
		}
		entity := strings.TrimPrefix(strings.TrimPrefix(name, "fct_"), "fact_")
		proposal.Reasoning = fmt.Sprintf("%s is a fact table tracking %s events.",
			table, inflection.Singular(entity))

	case strings.HasSuffix(name, "_snapshot") || strings.Contains(name, "_hist"):
		proposal.Role = models.RoleSnapshot
		proposal.RecommendedChecks = []string{models.CheckSchema}
		proposal.Reasoning = fmt.Sprintf("%s is a snapshot or history table; freshness is append-driven and not SLA-bound.", table)

	default:
		proposal.Role = models.RoleUnknown
		proposal.RecommendedChecks = checksWithOptionalFreshness(hasTimestamp)
		proposal.Reasoning = fmt.Sprintf("%s does not match a known naming convention; schema monitoring is the safe default.", table)
	}

	return proposal
}

func checksWithOptionalFreshness(hasTimestamp bool) []string {
	checks := []string{models.CheckSchema}
	if hasTimestamp {
		checks = append(checks, models.CheckFreshness)
	}
	return checks
}

func hasTimestampColumn(columns []models.ColumnDef) bool {
	for _, c := range columns {
		for _, candidate := range timestampColumns {
			if strings.EqualFold(c.Name, candidate) {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
