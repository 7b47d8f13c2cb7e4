package services

import (
	"net/url"
	"path"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/insights-engine/pkg/models"
)

var (
	videoExtensions = map[string]struct{}{".mp4": {}, ".mov": {}, ".avi": {}, ".webm": {}, ".mkv": {}}
	imageExtensions = map[string]struct{}{".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {}}
)

// metricSpec is a metric attached to assets and the column names it may appear under.
// Aliases are compared after normalizeColumn.
type metricSpec struct {
	name    string
	aliases []string
}

// metricFamily is a group of metrics selected when any keyword appears in the question.
type metricFamily struct {
	keywords []string
	metrics  []metricSpec
}

var (
	metricSpend       = metricSpec{name: "spend", aliases: []string{"spend", "total_spend", "amount_spent", "cost", "total_cost"}}
	metricImpressions = metricSpec{name: "impressions", aliases: []string{"impressions", "total_impressions", "reach"}}
	metricClicks      = metricSpec{name: "clicks", aliases: []string{"clicks", "total_clicks", "link_clicks"}}
	metricCTR         = metricSpec{name: "ctr", aliases: []string{"ctr", "avg_ctr", "click_through_rate"}}
	metricPurchases   = metricSpec{name: "purchases", aliases: []string{"purchases", "total_purchases", "conversions", "total_conversions"}}
	metricRevenue     = metricSpec{name: "revenue", aliases: []string{"revenue", "total_revenue", "purchase_value"}}
	metricROAS        = metricSpec{name: "roas", aliases: []string{"roas", "avg_roas", "return_on_ad_spend"}}
	metricCPA         = metricSpec{name: "cpa", aliases: []string{"cpa", "avg_cpa", "cost_per_acquisition", "cost_per_purchase"}}
	metricCPM         = metricSpec{name: "cpm", aliases: []string{"cpm", "avg_cpm", "cost_per_mille"}}
	metricCVR         = metricSpec{name: "cvr", aliases: []string{"cvr", "avg_cvr", "conversion_rate"}}
)

var metricFamilies = []metricFamily{
	{keywords: []string{"spend", "cost", "budget"}, metrics: []metricSpec{metricSpend}},
	{keywords: []string{"impression", "reach"}, metrics: []metricSpec{metricImpressions}},
	{keywords: []string{"click", "ctr"}, metrics: []metricSpec{metricClicks, metricCTR}},
	{keywords: []string{"purchase", "conversion", "convert"}, metrics: []metricSpec{metricPurchases}},
	{keywords: []string{"revenue", "roas", "return on ad spend"}, metrics: []metricSpec{metricRevenue, metricROAS}},
	{keywords: []string{"cpa", "acquisition"}, metrics: []metricSpec{metricCPA}},
	{keywords: []string{"cpm"}, metrics: []metricSpec{metricCPM}},
	{keywords: []string{"cvr", "conversion rate"}, metrics: []metricSpec{metricCVR}},
}

// defaultAssetMetrics are attached when the question names no metric family.
var defaultAssetMetrics = []metricSpec{metricSpend, metricImpressions, metricClicks, metricCTR, metricROAS}

// titleAliases are tried in order for an asset's label.
var titleAliases = []string{
	"ad_name", "campaign_name", "creative_name", "asset_name", "title", "name",
	"video_ad_type", "f_ad_type", "ad_type", "format",
	"raw_ad_id", "ad_id", "raw_campaign_id", "campaign_id",
}

// AssetExtractor finds media URLs in result rows.
type AssetExtractor interface {
	Extract(rows []models.Row, question string) []models.AssetReference
}

type assetExtractor struct{}

func NewAssetExtractor() AssetExtractor {
	return &assetExtractor{}
}

var _ AssetExtractor = (*assetExtractor)(nil)

// Extract emits one reference per media URL cell, in row then column order.
// Metrics come only from numeric cells of the same row.
func (e *assetExtractor) Extract(rows []models.Row, question string) []models.AssetReference {
	specs := relevantMetrics(question)

	assets := make([]models.AssetReference, 0)
	for i, row := range rows {
		var found []models.AssetReference
		for _, cell := range row.Cells() {
			s, ok := cell.Value.AsString()
			if !ok {
				continue
			}
			kind, ok := detectAssetKind(s)
			if !ok {
				continue
			}
			found = append(found, models.AssetReference{
				URL:            strings.TrimSpace(s),
				Kind:           kind,
				Column:         cell.Column,
				SourceRowIndex: i,
			})
		}
		if len(found) == 0 {
			continue
		}

		metrics := rowMetrics(row, specs)
		title := rowTitle(row)
		for _, a := range found {
			a.Title = title
			a.Metrics = make(map[string]float64, len(metrics))
			for k, v := range metrics {
				a.Metrics[k] = v
			}
			assets = append(assets, a)
		}
	}
	return assets
}

// detectAssetKind classifies http(s) URLs by file extension, then by download path.
func detectAssetKind(s string) (models.AssetKind, bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}

	p := strings.ToLower(u.Path)
	ext := path.Ext(p)
	if _, ok := videoExtensions[ext]; ok {
		return models.AssetVideo, true
	}
	if _, ok := imageExtensions[ext]; ok {
		return models.AssetImage, true
	}
	switch {
	case strings.Contains(p, "/dwnld/video/"):
		return models.AssetVideo, true
	case strings.Contains(p, "/dwnld/image/"):
		return models.AssetImage, true
	}
	return "", false
}

// relevantMetrics returns the metrics whose family keyword appears in the question,
// or defaultAssetMetrics when none does.
func relevantMetrics(question string) []metricSpec {
	q := strings.ToLower(question)
	var out []metricSpec
	seen := map[string]bool{}
	for _, fam := range metricFamilies {
		if !containsAny(q, fam.keywords) {
			continue
		}
		for _, m := range fam.metrics {
			if !seen[m.name] {
				seen[m.name] = true
				out = append(out, m)
			}
		}
	}
	if len(out) == 0 {
		return defaultAssetMetrics
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func rowMetrics(row models.Row, specs []metricSpec) map[string]float64 {
	byName := make(map[string]float64)
	for _, cell := range row.Cells() {
		n, ok := cell.Value.AsNumber()
		if !ok {
			continue
		}
		col := normalizeColumn(cell.Column)
		for _, spec := range specs {
			if _, done := byName[spec.name]; done {
				continue
			}
			if matchesAlias(col, spec.aliases) {
				byName[spec.name] = n
			}
		}
	}
	return byName
}

func rowTitle(row models.Row) string {
	for _, alias := range titleAliases {
		for _, cell := range row.Cells() {
			if normalizeColumn(cell.Column) != normalizeColumn(alias) || cell.Value.IsNull() {
				continue
			}
			if s := strings.TrimSpace(cell.Value.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func matchesAlias(normalized string, aliases []string) bool {
	for _, a := range aliases {
		if normalized == normalizeColumn(a) {
			return true
		}
	}
	return false
}

// normalizeColumn lowercases a column name and singularizes each underscore-separated
// word, so "Total_Impressions" and "total_impression" compare equal.
func normalizeColumn(name string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(name)), "_")
	for i, p := range parts {
		parts[i] = inflection.Singular(p)
	}
	return strings.Join(parts, "_")
}
