package agent

import (
	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/llm"
	"github.com/defineconsult/consult-api/internal/task"
)

// TranscriptAnalysis is the User Whisperer's output: insights, sentiment_score,
// key_themes, pain_points, feature_requests, urgency_level, actionable_items,
// customer_segment and summary, plus whatever else the model returned.
type TranscriptAnalysis map[string]any

var transcriptRequired = required{
	"insights":         emptyList,
	"sentiment_score":  number(0),
	"key_themes":       emptyList,
	"pain_points":      emptyList,
	"feature_requests": emptyList,
	"actionable_items": emptyList,
	"summary":          text("Analysis completed"),
}

// ApplyDefaults fills keys the model left out and clamps a numeric sentiment
// score to [-1, 1].
func (a *TranscriptAnalysis) ApplyDefaults() {
	m := transcriptRequired.fill(*a)
	m["sentiment_score"] = clamp(m["sentiment_score"], -1, 1)
	*a = m
}

// TranscriptFallback is the output used when the model's answer is unusable.
func TranscriptFallback(domain.TranscriptInput) TranscriptAnalysis {
	return TranscriptAnalysis{
		"insights":         textList("Transcript analyzed successfully"),
		"sentiment_score":  0.0,
		"key_themes":       textList("Customer feedback"),
		"pain_points":      []any{},
		"feature_requests": []any{},
		"urgency_level":    "medium",
		"actionable_items": textList("Review transcript for manual analysis"),
		"customer_segment": "casual_user",
		"summary":          "Transcript processed but detailed analysis unavailable",
	}
}

// TranscriptMetrics derives activity metadata.
func TranscriptMetrics(a TranscriptAnalysis) map[string]any {
	return map[string]any{
		"insights_count":  len(list(a["insights"])),
		"sentiment_score": a["sentiment_score"],
		"themes_count":    len(list(a["key_themes"])),
	}
}

// TranscriptItem is the User Whisperer work item.
func TranscriptItem(client llm.Client) task.WorkItem[domain.TranscriptInput, TranscriptAnalysis] {
	return task.WorkItem[domain.TranscriptInput, TranscriptAnalysis]{
		Kind: domain.KindTranscriptAnalysis,
		Provider: provider(client, "transcript.tmpl", TranscriptSettings, func(in domain.TranscriptInput) any {
			return struct{ Title, Content string }{
				Title:   orDefault(in.Title, "Customer Feedback"),
				Content: in.Content,
			}
		}),
		Fallback: TranscriptFallback,
		Metrics:  TranscriptMetrics,
	}
}
