package agent

import (
	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/llm"
	"github.com/defineconsult/consult-api/internal/task"
)

// CompetitorAnalysis is the Market Maven's output: executive_summary,
// key_updates, market_trends, strategic_recommendations,
// competitive_positioning, threat_assessment, monitoring_alerts and
// confidence_level.
type CompetitorAnalysis map[string]any

var (
	competitorRequired = required{
		"executive_summary":         text("Competitive analysis completed successfully"),
		"key_updates":               emptyList,
		"market_trends":             emptyList,
		"strategic_recommendations": emptyList,
		"monitoring_alerts":         emptyList,
		"competitive_positioning":   func() any { return map[string]any{} },
	}
	positioningRequired = required{
		"strengths":                     emptyList,
		"weaknesses":                    emptyList,
		"differentiation_opportunities": emptyList,
	}
)

// ApplyDefaults fills keys the model left out. A competitive_positioning
// value that is not an object is kept as returned.
func (a *CompetitorAnalysis) ApplyDefaults() {
	m := competitorRequired.fill(*a)
	if p := object(m["competitive_positioning"]); p != nil {
		positioningRequired.fill(p)
	}
	*a = m
}

// CompetitorFallback is the output used when the model's answer is unusable.
func CompetitorFallback(domain.CompetitorInput) CompetitorAnalysis {
	return CompetitorAnalysis{
		"executive_summary": "Competitor data analyzed successfully",
		"key_updates": []any{map[string]any{
			"update_type":         "general_analysis",
			"summary":             "Competitor information processed",
			"impact_level":        "medium",
			"implications":        "Requires manual review for detailed insights",
			"recommended_actions": textList("Review analysis manually", "Monitor for future updates"),
			"timeline":            "short_term",
		}},
		"market_trends": []any{},
		"strategic_recommendations": []any{map[string]any{
			"priority":       "medium",
			"recommendation": "Conduct manual review of competitor data",
			"rationale":      "Automated analysis could not be parsed",
		}},
		"competitive_positioning": map[string]any{
			"strengths":                     []any{},
			"weaknesses":                    []any{},
			"differentiation_opportunities": []any{},
		},
		"threat_assessment": "medium",
		"monitoring_alerts": textList("Continue monitoring competitor"),
		"confidence_level":  "low",
	}
}

// CompetitorMetrics derives activity metadata.
func CompetitorMetrics(a CompetitorAnalysis) map[string]any {
	return map[string]any{
		"updates_count":         len(list(a["key_updates"])),
		"recommendations_count": len(list(a["strategic_recommendations"])),
		"threat_assessment":     a["threat_assessment"],
	}
}

// CompetitorItem is the Market Maven work item.
func CompetitorItem(client llm.Client) task.WorkItem[domain.CompetitorInput, CompetitorAnalysis] {
	return task.WorkItem[domain.CompetitorInput, CompetitorAnalysis]{
		Kind: domain.KindCompetitorAnalysis,
		Provider: provider(client, "competitor.tmpl", CompetitorSettings, func(in domain.CompetitorInput) any {
			return struct{ AnalysisType, CompetitorData string }{
				AnalysisType:   orDefault(in.AnalysisType, "general_competitor_analysis"),
				CompetitorData: in.CompetitorData,
			}
		}),
		Fallback: CompetitorFallback,
		Metrics:  CompetitorMetrics,
	}
}
