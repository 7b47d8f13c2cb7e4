package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/insights-engine/pkg/models"
)

// BuildSQLSystemPrompt renders the system prompt for the SQL oracle from the cached
// schema and the domain profile. Only allow-listed tables present in the snapshot are
// rendered. The schema section is omitted entirely when none of them exist.
func BuildSQLSystemPrompt(schema *models.SchemaSnapshot, profile *Profile) string {
	if profile == nil {
		profile = DefaultProfile()
	}

	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("You are a SQL expert that converts natural language questions into %s queries for a marketing analytics database.\n\n", profile.Dialect))

	if section := renderSchema(schema, profile); section != "" {
		prompt.WriteString("# Database Schema\n\n")
		prompt.WriteString(section)
		prompt.WriteString("\n")
	}

	if len(profile.TableGuide) > 0 {
		prompt.WriteString("# Which Table To Use\n\n")
		for _, g := range profile.TableGuide {
			prompt.WriteString(fmt.Sprintf("- %s: %s\n", g.Topic, g.Table))
		}
		prompt.WriteString("\n")
	}

	if len(profile.JoinKeys) > 0 {
		prompt.WriteString("# Join Keys\n\n")
		for _, k := range profile.JoinKeys {
			prompt.WriteString(fmt.Sprintf("- %s\n", k))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString(queryRules)
	prompt.WriteString("\n")
	prompt.WriteString(doubleCountingRule(profile))
	prompt.WriteString("\n")
	prompt.WriteString("# Output\n\n")
	prompt.WriteString("Return ONLY the SQL query. No explanations, no markdown, no comments.\n")

	return prompt.String()
}

func renderSchema(schema *models.SchemaSnapshot, profile *Profile) string {
	var b strings.Builder
	for _, name := range profile.ImportantTables {
		table, ok := schema.Table(name)
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("Table: %s\n", table.Name))

		cols := table.Columns
		omitted := 0
		if feature, isFeature := profile.FeatureTable(name); isFeature {
			if feature.Note != "" {
				b.WriteString(fmt.Sprintf("  # %s:\n", feature.Note))
			}
		} else if len(cols) > profile.ColumnBudget {
			omitted = len(cols) - profile.ColumnBudget
			cols = cols[:profile.ColumnBudget]
		}

		for _, col := range cols {
			b.WriteString(fmt.Sprintf("  - %s (%s)\n", col.Name, describeColumn(col)))
		}
		if omitted > 0 {
			b.WriteString(fmt.Sprintf("  ... and %d more columns\n", omitted))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// describeColumn renders "type(maxLen)(p,s) NOT NULL" with absent parts dropped.
func describeColumn(col models.ColumnDescriptor) string {
	var b strings.Builder
	b.WriteString(col.DataType)
	if col.MaxLength != nil && *col.MaxLength > 0 {
		b.WriteString(fmt.Sprintf("(%d)", *col.MaxLength))
	}
	if col.NumericPrecision != nil && col.NumericScale != nil && *col.NumericPrecision != 0 && *col.NumericScale != 0 {
		b.WriteString(fmt.Sprintf("(%d,%d)", *col.NumericPrecision, *col.NumericScale))
	}
	if !col.IsNullable {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

const queryRules = `# Query Rules

1. Only generate SELECT statements. Never modify data.
2. Always include LIMIT 100 unless the question asks for a specific number of rows.
3. Round money and ratio outputs with ROUND(x::numeric, 2).
4. Cast to ::float before dividing and guard denominators with NULLIF(x, 0).
5. Prefer subqueries over CTEs (WITH clauses).
6. Use ILIKE for case-insensitive text matching.
7. Date idioms:
   - "last week": date >= date_trunc('week', CURRENT_DATE) - INTERVAL '7 days' AND date < date_trunc('week', CURRENT_DATE)
   - "this week": date >= date_trunc('week', CURRENT_DATE)
   - "this month": date >= date_trunc('month', CURRENT_DATE)
   - "last month": date >= date_trunc('month', CURRENT_DATE) - INTERVAL '1 month' AND date < date_trunc('month', CURRENT_DATE)
8. Ad format questions: image ads use t_ad_image_labelings.f_ad_type, video ads use t_ad_video_labelings.video_ad_type.
9. Derived metrics:
   - CTR = clicks::float / NULLIF(impressions, 0) * 100
   - CVR = purchases::float / NULLIF(clicks, 0) * 100
   - CPA = spend::float / NULLIF(purchases, 0)
   - ROAS = revenue::float / NULLIF(spend, 0)
   - CPM = spend::float / NULLIF(impressions, 0) * 1000
`

// doubleCountingRule explains how joining a fan-out feature table inflates sums.
func doubleCountingRule(profile *Profile) string {
	fanOut := "t_ad_video_labelings"
	for _, f := range profile.FeatureTables {
		if f.FanOut {
			fanOut = f.Name
			break
		}
	}

	return fmt.Sprintf(`# Avoid Double Counting

%[1]s can hold several rows per ad. Joining it directly to performance rows repeats
each ad's spend, impressions and clicks once per matching row, so SUM() overstates totals.
Aggregate performance per ad first, then join the features, and for %[1]s additionally
pick exactly one feature row per asset with DISTINCT ON and an explicit ORDER BY tiebreak.
SELECT DISTINCT over the feature columns is not enough: an asset whose rows disagree still
matches several rows and its spend lands in every group.

INCORRECT (spend is multiplied by the number of feature rows):

SELECT v.video_ad_type, SUM(p.spend) AS total_spend
FROM t_ad_daily_performance p
JOIN t_ad a ON a.raw_ad_id = p.raw_ad_id
JOIN %[1]s v ON v.raw_asset_id = a.asset_id
GROUP BY v.video_ad_type
LIMIT 100

CORRECT (pre-aggregate performance per ad, then one feature row per asset):

SELECT f.video_ad_type, ROUND(SUM(perf.spend)::numeric, 2) AS total_spend
FROM (
  SELECT raw_ad_id, SUM(spend) AS spend
  FROM t_ad_daily_performance
  GROUP BY raw_ad_id
) perf
JOIN t_ad a ON a.raw_ad_id = perf.raw_ad_id
JOIN (
  SELECT DISTINCT ON (raw_asset_id) raw_asset_id, video_ad_type
  FROM %[1]s
  ORDER BY raw_asset_id, video_ad_type
) f ON f.raw_asset_id = a.asset_id
GROUP BY f.video_ad_type
LIMIT 100
`, fanOut)
}
