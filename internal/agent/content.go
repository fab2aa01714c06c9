package agent

import (
	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/llm"
	"github.com/defineconsult/consult-api/internal/task"
)

// GeneratedContent is the Narrative Architect's output: title, content,
// variations (style, content, hashtags, cta), engagement_strategy,
// visual_suggestions, posting_recommendations and follow_up_ideas.
type GeneratedContent map[string]any

var (
	contentRequired = required{
		"content":         text("Content generated successfully"),
		"variations":      emptyList,
		"follow_up_ideas": emptyList,
	}
	variationRequired = required{
		"hashtags": emptyList,
	}
)

// ApplyDefaults fills keys the model left out.
func (c *GeneratedContent) ApplyDefaults() {
	m := contentRequired.fill(*c)
	for _, v := range list(m["variations"]) {
		if o := object(v); o != nil {
			variationRequired.fill(o)
		}
	}
	*c = m
}

// ContentFallback is the output used when the model's answer is unusable.
// It is built from the request so the caller still gets usable copy.
func ContentFallback(in domain.ContentInput) GeneratedContent {
	excerpt := truncate(in.SourceMaterial, 100)
	return GeneratedContent{
		"title":   humanize(in.ContentType) + " for " + humanize(in.Platform),
		"content": "Generated content for " + in.Platform + " - " + in.ContentType + ". Source: " + excerpt,
		"variations": []any{map[string]any{
			"style":    "Standard approach",
			"content":  "Check out our latest update! " + excerpt,
			"hashtags": textList("#ProductManagement", "#AI", "#Innovation"),
			"cta":      "Learn more about Define Consult",
		}},
		"engagement_strategy":     "Optimize posting time for " + in.Platform + " audience",
		"visual_suggestions":      "Include product screenshots or infographics",
		"posting_recommendations": "Follow " + in.Platform + " best practices for maximum reach",
		"follow_up_ideas":         textList("Share user testimonials", "Post behind-the-scenes content"),
	}
}

// ContentMetrics derives activity metadata.
func ContentMetrics(c GeneratedContent) map[string]any {
	body, _ := c["content"].(string)
	return map[string]any{
		"variations_count": len(list(c["variations"])),
		"content_length":   len(body),
	}
}

// ContentItem is the Narrative Architect work item.
func ContentItem(client llm.Client) task.WorkItem[domain.ContentInput, GeneratedContent] {
	return task.WorkItem[domain.ContentInput, GeneratedContent]{
		Kind: domain.KindContentGeneration,
		Provider: provider(client, "content.tmpl", ContentSettings, func(in domain.ContentInput) any {
			return struct {
				Platform, ContentType, SourceMaterial, Context, TargetAudience, BrandTone string
			}{
				Platform:       in.Platform,
				ContentType:    in.ContentType,
				SourceMaterial: in.SourceMaterial,
				Context:        in.Context,
				TargetAudience: orDefault(in.TargetAudience, "product managers and tech professionals"),
				BrandTone:      orDefault(in.BrandTone, "professional, innovative, approachable"),
			}
		}),
		Fallback: ContentFallback,
		Metrics:  ContentMetrics,
	}
}
