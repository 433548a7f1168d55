package lineage

import (
	"sort"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

type direction int

const (
	directionDownstream direction = iota
	directionUpstream
)

type neighbor struct {
	table      string
	confidence float64
}

// graph is an in-memory adjacency view over the non-stale edge set.
type graph struct {
	forward  map[string][]neighbor // source -> targets
	backward map[string][]neighbor // target -> sources
}

func buildGraph(edges []*models.LineageEdge) *graph {
	g := &graph{
		forward:  make(map[string][]neighbor),
		backward: make(map[string][]neighbor),
	}
	for _, e := range edges {
		g.forward[e.SourceTable] = append(g.forward[e.SourceTable], neighbor{e.TargetTable, e.Confidence})
		g.backward[e.TargetTable] = append(g.backward[e.TargetTable], neighbor{e.SourceTable, e.Confidence})
	}
	// Deterministic traversal order by table name.
	for _, adj := range []map[string][]neighbor{g.forward, g.backward} {
		for _, neighbors := range adj {
			sort.Slice(neighbors, func(i, j int) bool {
				return neighbors[i].table < neighbors[j].table
			})
		}
	}
	return g
}

func (g *graph) outDegree(table string) int {
	return len(g.forward[table])
}

// traverse runs a bounded BFS from start. Confidence along a path is the
// product of edge confidences; when a node is reachable through multiple
// paths the first (shallowest, name-ordered) path wins. The visited set
// guards against cycles and self-edges.
func (g *graph) traverse(start string, dir direction, maxDepth int, minConfidence float64) []models.LineageNode {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	adj := g.forward
	if dir == directionUpstream {
		adj = g.backward
	}

	type queueItem struct {
		table      string
		depth      int
		confidence float64
	}

	visited := map[string]bool{start: true}
	queue := []queueItem{{table: start, depth: 0, confidence: 1.0}}
	var result []models.LineageNode

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.depth >= maxDepth {
			continue
		}

		for _, n := range adj[item.table] {
			if visited[n.table] {
				continue
			}
			pathConfidence := item.confidence * n.confidence
			if pathConfidence < minConfidence {
				continue
			}
			visited[n.table] = true
			result = append(result, models.LineageNode{
				Table:      n.table,
				Depth:      item.depth + 1,
				Confidence: pathConfidence,
			})
			queue = append(queue, queueItem{table: n.table, depth: item.depth + 1, confidence: pathConfidence})
		}
	}
	return result
}

// shortestPath finds the fewest-hop path from source to target, breaking
// ties by highest product confidence. Returns the path including both
// endpoints, or nil when unreachable.
func (g *graph) shortestPath(source, target string) []models.LineageNode {
	if source == target {
		return []models.LineageNode{{Table: source, Depth: 0, Confidence: 1.0}}
	}

	type pathState struct {
		confidence float64
		prev       string
		depth      int
	}

	best := map[string]pathState{source: {confidence: 1.0, depth: 0}}
	frontier := []string{source}
	depth := 0

	for len(frontier) > 0 && best[target].prev == "" && target != source {
		depth++
		var next []string
		for _, table := range frontier {
			state := best[table]
			for _, n := range g.forward[table] {
				candidate := pathState{
					confidence: state.confidence * n.confidence,
					prev:       table,
					depth:      depth,
				}
				existing, seen := best[n.table]
				if !seen || (existing.depth == depth && candidate.confidence > existing.confidence) {
					if !seen {
						next = append(next, n.table)
					}
					best[n.table] = candidate
				}
			}
		}
		frontier = next
		if _, found := best[target]; found {
			break
		}
	}

	if _, found := best[target]; !found {
		return nil
	}

	// Walk back from target to source.
	var reversed []models.LineageNode
	for at := target; at != ""; at = best[at].prev {
		reversed = append(reversed, models.LineageNode{
			Table:      at,
			Depth:      best[at].depth,
			Confidence: best[at].confidence,
		})
		if at == source {
			break
		}
	}

	path := make([]models.LineageNode, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
