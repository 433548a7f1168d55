// Package sqlparse extracts lineage edges from captured warehouse SQL.
// It is a lightweight lexical parser: good enough to find the single write
// target and the set of source tables of INSERT / CREATE-AS / MERGE
// statements without a full grammar. Unparseable statements are reported
// to the caller, which skips them.
package sqlparse

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Confidence by reference shape. Deeper nesting means weaker evidence that
// the source actually feeds the target.
const (
	ConfidenceDirect   = 1.0
	ConfidenceSubquery = 0.8
	ConfidenceCTE      = 0.8
	ConfidenceDeep     = 0.6

	// deepNestingLevel is the parenthesis depth at which confidence drops
	// to ConfidenceDeep.
	deepNestingLevel = 3
)

// SourceRef is one source table found in a statement.
type SourceRef struct {
	Table      string
	Confidence float64
}

// ParsedQuery is the lineage extraction of one modifying statement.
type ParsedQuery struct {
	Target       string
	Sources      []SourceRef
	Relationship string
}

var (
	insertTargetPattern   = regexp.MustCompile(`(?is)^\s*insert\s+into\s+([\w."]+)`)
	createAsTargetPattern = regexp.MustCompile(`(?is)^\s*create\s+(?:or\s+replace\s+)?(?:temp(?:orary)?\s+)?table\s+(?:if\s+not\s+exists\s+)?([\w."]+)\s+as\b`)
	mergeTargetPattern    = regexp.MustCompile(`(?is)^\s*merge\s+into\s+([\w."]+)`)
	selectIntoPattern     = regexp.MustCompile(`(?is)^\s*select\b.*?\binto\s+([\w."]+)`)

	ctePattern = regexp.MustCompile(`(?is)(?:\bwith\b|,)\s*([\w"]+)\s*(?:\([^)]*\))?\s+as\s*\(`)

	lineCommentPattern  = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)

	tableRefPattern = regexp.MustCompile(`(?i)\b(from|join|using)\s+([\w."]+)`)

	groupByPattern = regexp.MustCompile(`(?is)\bgroup\s+by\b`)
)

// ErrNotModifying marks statements without a recognized write target.
var ErrNotModifying = fmt.Errorf("statement has no recognized write target")

// Parse extracts the write target and source tables from a SQL statement.
// Statements without target-modifying semantics return ErrNotModifying.
func Parse(sql string) (*ParsedQuery, error) {
	cleaned := stripComments(sql)
	if strings.TrimSpace(cleaned) == "" {
		return nil, ErrNotModifying
	}

	target := extractTarget(cleaned)
	if target == "" {
		return nil, ErrNotModifying
	}

	cteNames := extractCTENames(cleaned)
	sources := extractSources(cleaned, target, cteNames)

	return &ParsedQuery{
		Target:       target,
		Sources:      sources,
		Relationship: classifyRelationship(cleaned, sources),
	}, nil
}

// QueryHash returns the content hash used to key edges back to the
// statement that produced them.
func QueryHash(sql string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(stripComments(sql))), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func stripComments(sql string) string {
	sql = blockCommentPattern.ReplaceAllString(sql, " ")
	return lineCommentPattern.ReplaceAllString(sql, " ")
}

func extractTarget(sql string) string {
	for _, pattern := range []*regexp.Regexp{
		insertTargetPattern, createAsTargetPattern, mergeTargetPattern, selectIntoPattern,
	} {
		if m := pattern.FindStringSubmatch(sql); m != nil {
			return normalizeIdentifier(m[1])
		}
	}
	return ""
}

// extractCTENames returns the names defined in WITH clauses. They are
// statement-local aliases, never real tables, so they are excluded from
// the source set.
func extractCTENames(sql string) map[string]bool {
	names := make(map[string]bool)
	for _, m := range ctePattern.FindAllStringSubmatch(sql, -1) {
		names[normalizeIdentifier(m[1])] = true
	}
	return names
}

// extractSources scans FROM/JOIN/USING references, assigning confidence by
// the parenthesis depth of the reference and whether the statement defines
// CTEs. Duplicate references keep the highest confidence.
func extractSources(sql, target string, cteNames map[string]bool) []SourceRef {
	hasCTEs := len(cteNames) > 0
	best := make(map[string]float64)
	var order []string

	for _, m := range tableRefPattern.FindAllStringSubmatchIndex(sql, -1) {
		ref := normalizeIdentifier(sql[m[4]:m[5]])
		if ref == "" || ref == target || cteNames[ref] {
			continue
		}
		// "using" appears both in MERGE (a real source) and in join
		// conditions like USING (col); the latter never matches an
		// identifier because of the parenthesis.
		if isKeyword(ref) {
			continue
		}

		depth := parenDepthAt(sql, m[0])
		confidence := confidenceFor(depth, hasCTEs)

		if prev, seen := best[ref]; !seen {
			best[ref] = confidence
			order = append(order, ref)
		} else if confidence > prev {
			best[ref] = confidence
		}
	}

	sources := make([]SourceRef, 0, len(order))
	for _, table := range order {
		sources = append(sources, SourceRef{Table: table, Confidence: best[table]})
	}
	return sources
}

func confidenceFor(depth int, insideCTEStatement bool) float64 {
	switch {
	case depth >= deepNestingLevel:
		return ConfidenceDeep
	case depth >= 1:
		return ConfidenceSubquery
	case insideCTEStatement:
		return ConfidenceCTE
	default:
		return ConfidenceDirect
	}
}

// parenDepthAt computes the parenthesis nesting depth at byte offset pos,
// ignoring parentheses inside string literals.
func parenDepthAt(sql string, pos int) int {
	depth := 0
	inString := false
	for i, ch := range sql {
		if i >= pos {
			break
		}
		switch ch {
		case '\'':
			inString = !inString
		case '(':
			if !inString {
				depth++
			}
		case ')':
			if !inString && depth > 0 {
				depth--
			}
		}
	}
	return depth
}

func classifyRelationship(sql string, sources []SourceRef) string {
	if groupByPattern.MatchString(sql) {
		return "aggregated"
	}
	for _, s := range sources {
		if s.Confidence < ConfidenceDirect {
			return "derived"
		}
	}
	return "direct"
}

func normalizeIdentifier(ident string) string {
	ident = strings.ReplaceAll(ident, `"`, "")
	ident = strings.TrimRight(ident, ";,")
	return strings.ToLower(strings.TrimSpace(ident))
}

var sqlKeywords = map[string]bool{
	"select": true, "lateral": true, "unnest": true, "values": true,
	"dual": true, "on": true, "where": true,
}

func isKeyword(ident string) bool {
	return sqlKeywords[ident]
}
