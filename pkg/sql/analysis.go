package sql

import (
	"regexp"
	"strings"
)

// Query types recorded in the usage log.
const (
	QueryTypeAggregation = "aggregation"
	QueryTypeLookup      = "lookup"
	QueryTypeReport      = "report"
	QueryTypeExploration = "exploration"
)

var (
	tableRefPattern    = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)?)`)
	aggregationPattern = regexp.MustCompile(`\b(COUNT|SUM|AVG|MIN|MAX|ARRAY_AGG|STRING_AGG|BOOL_AND|BOOL_OR)\s*\(`)
	groupByPattern     = regexp.MustCompile(`\bGROUP\s+BY\b`)
	orderByPattern     = regexp.MustCompile(`\bORDER\s+BY\b`)
	wherePattern       = regexp.MustCompile(`\bWHERE\b`)
)

// ClassifyQueryType buckets a cleaned statement by shape.
func ClassifyQueryType(sqlQuery string) string {
	upper := strings.ToUpper(maskNonCode(sqlQuery))

	if aggregationPattern.MatchString(upper) || groupByPattern.MatchString(upper) {
		return QueryTypeAggregation
	}

	hasLimit := rowLimitPattern.MatchString(upper)
	if wherePattern.MatchString(upper) && hasLimit {
		return QueryTypeLookup
	}
	if orderByPattern.MatchString(upper) && !hasLimit {
		return QueryTypeReport
	}
	return QueryTypeExploration
}

// ReferencedTables lists tables named in FROM and JOIN clauses, lowercased, in first-seen order.
func ReferencedTables(sqlQuery string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(maskNonCode(sqlQuery), -1)
	seen := make(map[string]bool)
	var tables []string

	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		name := strings.ToLower(match[1])
		// Derived tables and LATERAL joins are not table references.
		if name == "select" || name == "lateral" {
			continue
		}
		if !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}
	return tables
}
