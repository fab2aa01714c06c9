package api

import (
	"time"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/service"
	"github.com/google/uuid"
)

// TranscriptRequest is the JSON body for the User Whisperer.
type TranscriptRequest struct {
	Title    string `json:"title"    validate:"max=200"`
	Content  string `json:"content"  validate:"required"`
	Filename string `json:"filename" validate:"max=255"`
}

func (r TranscriptRequest) input() domain.TranscriptInput {
	title := r.Title
	if title == "" {
		title = "Customer Feedback"
	}
	return domain.TranscriptInput{Title: title, Content: r.Content, Filename: r.Filename}
}

// CompetitorRequest is the JSON body for the Market Maven.
type CompetitorRequest struct {
	CompetitorData string `json:"competitor_data" validate:"required"`
	AnalysisType   string `json:"analysis_type"   validate:"max=100"`
}

func (r CompetitorRequest) input() domain.CompetitorInput {
	return domain.CompetitorInput{CompetitorData: r.CompetitorData, AnalysisType: r.AnalysisType}
}

// ContentRequest is the JSON body for the Narrative Architect. Platform and
// content type are checked against the domain lists.
type ContentRequest struct {
	Platform       string `json:"platform"        validate:"required"`
	ContentType    string `json:"content_type"    validate:"required"`
	SourceMaterial string `json:"source_material" validate:"required"`
	Context        string `json:"context"`
	TargetAudience string `json:"target_audience" validate:"max=200"`
	BrandTone      string `json:"brand_tone"      validate:"max=200"`
}

func (r ContentRequest) input() domain.ContentInput {
	return domain.ContentInput{
		Platform:       r.Platform,
		ContentType:    r.ContentType,
		SourceMaterial: r.SourceMaterial,
		Context:        r.Context,
		TargetAudience: r.TargetAudience,
		BrandTone:      r.BrandTone,
	}
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	RecordID   uuid.UUID     `json:"record_id"`
	TaskHandle string        `json:"task_handle"`
	Status     domain.Status `json:"status"`
	Message    string        `json:"message"`
}

// ListResponse is a page of the caller's records.
type ListResponse struct {
	Records []service.StatusView `json:"records"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// ActivityResponse lists a record's log entries, oldest first.
type ActivityResponse struct {
	RecordID uuid.UUID                  `json:"record_id"`
	Entries  []*domain.ActivityLogEntry `json:"entries"`
}

// HealthResponse reports liveness of the service or one agent.
type HealthResponse struct {
	Status    string    `json:"status"`
	Agent     string    `json:"agent,omitempty"`
	Name      string    `json:"name,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
