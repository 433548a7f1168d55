package prompts

import (
	"fmt"
)

// DiscoverySystemMessage frames the Investigator agent's role.
const DiscoverySystemMessage = `You are a data reliability engineer surveying an analytical warehouse to decide which tables deserve monitoring. Use the provided tools to explore schemas, tables, columns, freshness signals, and known lineage. Classify each table into a role (fact, dimension, staging, raw, snapshot, system, unknown), recommend check types and a freshness SLA where sensible, and flag system or scratch tables as skipped. Work breadth-first; do not inspect every column of every table when the name already tells the story.`

// BuildDiscoveryPrompt starts the agent conversation for one connection.
func BuildDiscoveryPrompt(connectionName string, maxToolCalls int) string {
	return fmt.Sprintf(`Survey the warehouse behind connection %q and propose tables to monitor.

You have a budget of %d tool calls. When you have seen enough, respond with ONLY a JSON object of this shape:

{
  "proposals": [
    {
      "schema": "public",
      "table": "orders",
      "role": "fact|dimension|staging|raw|snapshot|system|unknown",
      "recommended_checks": ["schema", "freshness"],
      "suggested_sla_minutes": 360,
      "reasoning": "why this classification",
      "skip": false
    }
  ],
  "concerns": ["anything that looked unhealthy or surprising"]
}

Omit suggested_sla_minutes when freshness is not recommended. Mark temp/backup/test tables with "role": "system" and "skip": true.`,
		connectionName, maxToolCalls)
}
