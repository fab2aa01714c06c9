package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/defineconsult/consult-api/internal/agent"
	"github.com/defineconsult/consult-api/internal/api/shared"
	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/platform/logger"
	"github.com/defineconsult/consult-api/internal/service"
	"github.com/go-chi/chi/v5"
)

// transcriptExtensions are the upload types accepted by the User Whisperer.
var transcriptExtensions = []string{".txt", ".md"}

// ConsultHandler serves the agent and record endpoints.
type ConsultHandler struct {
	svc      service.ConsultService
	provider string
	now      func() time.Time
}

// NewConsultHandler creates a ConsultHandler. provider names the LLM chain
// reported by the agent health endpoint.
func NewConsultHandler(svc service.ConsultService, provider string) *ConsultHandler {
	return &ConsultHandler{svc: svc, provider: provider, now: time.Now}
}

// RegisterRoutes mounts the authenticated /api routes on r.
func (h *ConsultHandler) RegisterRoutes(r chi.Router) {
	r.Post("/agents/user-whisperer/transcripts", h.SubmitTranscript)
	r.Post("/agents/market-maven/analyses", h.SubmitCompetitorAnalysis)
	r.Post("/agents/narrative-architect/content", h.SubmitContent)
	r.Get("/agents/{agent}/health", h.AgentHealth)

	r.Get("/records", h.ListRecords)
	r.Route("/records/{id}", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/result", h.GetResult)
		r.Get("/activity", h.GetActivity)
	})

	r.Get("/tasks/{handle}/status", h.GetTaskStatus)
}

// SubmitTranscript handles POST /api/agents/user-whisperer/transcripts. It
// accepts a JSON body or a multipart upload with a "file" part and an
// optional "title" field.
func (h *ConsultHandler) SubmitTranscript(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		in, err := transcriptFromUpload(w, r)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		h.submit(w, r, in, "Transcript uploaded and processing started")
		return
	}

	var req TranscriptRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.submit(w, r, req.input(), "Transcript received and processing started")
}

// SubmitCompetitorAnalysis handles POST /api/agents/market-maven/analyses.
func (h *ConsultHandler) SubmitCompetitorAnalysis(w http.ResponseWriter, r *http.Request) {
	var req CompetitorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.submit(w, r, req.input(), "Competitor analysis started")
}

// SubmitContent handles POST /api/agents/narrative-architect/content.
func (h *ConsultHandler) SubmitContent(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.submit(w, r, req.input(), "Content generation started")
}

func (h *ConsultHandler) submit(w http.ResponseWriter, r *http.Request, in domain.Input, message string) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	sub, err := h.svc.Submit(r.Context(), owner, in)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit work")
		return
	}

	logger.FromContext(r.Context()).Info("work submitted",
		slog.String("record_id", sub.RecordID.String()),
		slog.String("task_handle", sub.TaskHandle),
		slog.String("kind", string(in.Kind())))

	shared.RespondWithJSON(w, r, http.StatusOK, SubmitResponse{
		RecordID:   sub.RecordID,
		TaskHandle: sub.TaskHandle,
		Status:     domain.StatusProcessing,
		Message:    message,
	})
}

func transcriptFromUpload(w http.ResponseWriter, r *http.Request) (domain.TranscriptInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, shared.MaxBodyBytes)
	if err := r.ParseMultipartForm(shared.MaxBodyBytes); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return domain.TranscriptInput{}, err
		}
		return domain.TranscriptInput{}, domain.NewValidationError("file", "could not read upload")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return domain.TranscriptInput{}, domain.NewValidationError("file", "is required")
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(transcriptExtensions, ext) {
		return domain.TranscriptInput{}, domain.NewValidationError("file", "must be a .txt or .md file")
	}

	body, err := io.ReadAll(io.LimitReader(file, domain.MaxInputBytes+1))
	if err != nil {
		return domain.TranscriptInput{}, domain.NewValidationError("file", "could not read upload")
	}
	if !utf8.Valid(body) {
		return domain.TranscriptInput{}, domain.NewValidationError("file", "must be UTF-8 text")
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = "Customer Feedback"
	}
	return domain.TranscriptInput{
		Title:    title,
		Content:  string(body),
		Filename: filepath.Base(header.Filename),
	}, nil
}

// ListRecords handles GET /api/records.
func (h *ConsultHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if limit == 0 {
		limit = 20
	}
	kind := domain.Kind(r.URL.Query().Get("kind"))

	records, err := h.svc.List(r.Context(), owner, service.ListQuery{Kind: kind, Limit: limit, Offset: offset})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list records")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ListResponse{Records: records, Limit: limit, Offset: offset})
}

// GetStatus handles GET /api/records/{id}/status.
func (h *ConsultHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndPathUUID(w, r, "id")
	if !ok {
		return
	}
	st, err := h.svc.GetStatus(r.Context(), id, owner)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, st)
}

// GetResult handles GET /api/records/{id}/result.
func (h *ConsultHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndPathUUID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.GetResult(r.Context(), id, owner)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get result")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, res)
}

// GetActivity handles GET /api/records/{id}/activity.
func (h *ConsultHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndPathUUID(w, r, "id")
	if !ok {
		return
	}
	entries, err := h.svc.Activity(r.Context(), id, owner)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get activity")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ActivityResponse{RecordID: id, Entries: entries})
}

// GetTaskStatus handles GET /api/tasks/{handle}/status.
func (h *ConsultHandler) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	st, err := h.svc.TaskState(r.Context(), chi.URLParam(r, "handle"), owner)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, st)
}

// AgentHealth handles GET /api/agents/{agent}/health.
func (h *ConsultHandler) AgentHealth(w http.ResponseWriter, r *http.Request) {
	a, ok := agent.BySlug(chi.URLParam(r, "agent"))
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Agent not found")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Agent:     a.Slug,
		Name:      a.Name,
		Provider:  h.provider,
		Message:   a.Name + " agent is operational",
		Timestamp: h.now().UTC(),
	})
}

// Health handles GET /health. It needs no authentication.
func Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Message:   "Define Consult API is operational",
		Timestamp: time.Now().UTC(),
	})
}
