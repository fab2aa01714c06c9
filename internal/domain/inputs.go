package domain

import (
	"fmt"
	"strings"
)

// MaxInputBytes bounds the primary text of any submission.
const MaxInputBytes = 200_000

// Input is the submitted material for one unit of work.
type Input interface {
	// Kind reports which agent processes this input.
	Kind() Kind
	// Validate rejects empty or malformed submissions with a *ValidationError.
	Validate() error
	// Size is the length of the primary text, recorded in activity metadata.
	Size() int
}

// TranscriptInput is a customer feedback transcript for the User Whisperer agent.
type TranscriptInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Filename string `json:"filename,omitempty"`
}

// Kind implements Input.
func (TranscriptInput) Kind() Kind { return KindTranscriptAnalysis }

// Size implements Input. It counts the transcript content.
func (in TranscriptInput) Size() int { return len(in.Content) }

// Validate implements Input. Content must be non-blank and within MaxInputBytes.
func (in TranscriptInput) Validate() error {
	return requireText("content", in.Content)
}

// CompetitorInput is raw competitor material for the Market Maven agent.
type CompetitorInput struct {
	CompetitorData string `json:"competitor_data"`
	AnalysisType   string `json:"analysis_type,omitempty"`
}

// Kind implements Input.
func (CompetitorInput) Kind() Kind { return KindCompetitorAnalysis }

// Size implements Input. It counts the competitor data.
func (in CompetitorInput) Size() int { return len(in.CompetitorData) }

// Validate implements Input. Competitor data must be non-blank and within
// MaxInputBytes.
func (in CompetitorInput) Validate() error {
	return requireText("competitor_data", in.CompetitorData)
}

// Platforms accepted by the Narrative Architect agent.
var Platforms = []string{"linkedin", "twitter", "medium", "blog", "email", "general"}

// ContentTypes accepted by the Narrative Architect agent.
var ContentTypes = []string{
	"feature_announcement",
	"product_update",
	"thought_leadership",
	"social_post",
	"blog_post",
	"press_release",
	"case_study",
	"newsletter",
}

// ContentInput asks the Narrative Architect agent to turn source material into platform copy.
type ContentInput struct {
	Platform       string `json:"platform"`
	ContentType    string `json:"content_type"`
	SourceMaterial string `json:"source_material"`
	Context        string `json:"context,omitempty"`
	TargetAudience string `json:"target_audience,omitempty"`
	BrandTone      string `json:"brand_tone,omitempty"`
}

// Kind implements Input.
func (ContentInput) Kind() Kind { return KindContentGeneration }

// Size implements Input. It counts the source material.
func (in ContentInput) Size() int { return len(in.SourceMaterial) }

// Validate implements Input. Platform and content type must be known values
// and the source material must be non-blank.
func (in ContentInput) Validate() error {
	if !contains(Platforms, in.Platform) {
		return NewValidationError("platform", fmt.Sprintf("must be one of %s", strings.Join(Platforms, ", ")))
	}
	if !contains(ContentTypes, in.ContentType) {
		return NewValidationError("content_type", fmt.Sprintf("must be one of %s", strings.Join(ContentTypes, ", ")))
	}
	return requireText("source_material", in.SourceMaterial)
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(field, "must not be empty")
	}
	if len(value) > MaxInputBytes {
		return NewValidationError(field, fmt.Sprintf("must not exceed %d bytes", MaxInputBytes))
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
