package agent

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/llm"
	"github.com/defineconsult/consult-api/internal/platform/logger"
	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/defineconsult/consult-api/internal/task"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// Agent describes a public agent endpoint.
type Agent struct {
	Slug        string
	Name        string
	Kind        domain.Kind
	Description string
}

var agents = []Agent{
	{
		Slug:        "user-whisperer",
		Name:        "User Whisperer",
		Kind:        domain.KindTranscriptAnalysis,
		Description: "Customer feedback transcript analysis",
	},
	{
		Slug:        "market-maven",
		Name:        "Market Maven",
		Kind:        domain.KindCompetitorAnalysis,
		Description: "Competitive intelligence analysis",
	},
	{
		Slug:        "narrative-architect",
		Name:        "Narrative Architect",
		Kind:        domain.KindContentGeneration,
		Description: "Platform-specific content generation",
	},
}

// Agents returns every agent.
func Agents() []Agent {
	out := make([]Agent, len(agents))
	copy(out, agents)
	return out
}

// BySlug finds an agent by its URL slug.
func BySlug(slug string) (Agent, bool) {
	for _, a := range agents {
		if a.Slug == slug {
			return a, true
		}
	}
	return Agent{}, false
}

// Settings are the completion parameters for one agent.
type Settings struct {
	MaxTokens   int
	Temperature float32
}

// Per-agent completion settings.
var (
	TranscriptSettings = Settings{MaxTokens: 1000, Temperature: 0.3}
	CompetitorSettings = Settings{MaxTokens: 1200, Temperature: 0.4}
	ContentSettings    = Settings{MaxTokens: 1500, Temperature: 0.7}
)

// provider builds a WorkItem provider that renders tmpl with data(in) and
// sends it to client.
func provider[TIn any](
	client llm.Client,
	tmpl string,
	s Settings,
	data func(TIn) any,
) func(ctx context.Context, in TIn, meta task.Meta) (string, error) {
	return func(ctx context.Context, in TIn, meta task.Meta) (string, error) {
		var buf bytes.Buffer
		if err := prompts.ExecuteTemplate(&buf, tmpl, data(in)); err != nil {
			return "", queue.Permanent(fmt.Errorf("render %s: %w", tmpl, err))
		}

		logger.FromContextOrDefault(ctx, slog.Default()).DebugContext(ctx, "prompt rendered",
			slog.String("template", tmpl),
			slog.String("record_id", meta.RecordID.String()),
			slog.Int("attempt", meta.Attempt),
			slog.Int("prompt_length", buf.Len()))

		return client.Complete(ctx, llm.Request{
			Prompt:      buf.String(),
			MaxTokens:   s.MaxTokens,
			Temperature: s.Temperature,
		})
	}
}

// Handlers builds one engine per agent over client.
func Handlers(client llm.Client, deps task.Deps, log *slog.Logger) ([]task.Handler, error) {
	transcript, err := task.NewEngine(TranscriptItem(client), deps, log)
	if err != nil {
		return nil, fmt.Errorf("transcript engine: %w", err)
	}
	competitor, err := task.NewEngine(CompetitorItem(client), deps, log)
	if err != nil {
		return nil, fmt.Errorf("competitor engine: %w", err)
	}
	content, err := task.NewEngine(ContentItem(client), deps, log)
	if err != nil {
		return nil, fmt.Errorf("content engine: %w", err)
	}
	return []task.Handler{transcript, competitor, content}, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// truncate cuts s to at most n runes and marks the cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// humanize turns "feature_announcement" into "Feature Announcement".
func humanize(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = strings.ToUpper(string(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
