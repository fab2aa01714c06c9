package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/defineconsult/consult-api/internal/config"
	"github.com/defineconsult/consult-api/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error

	gotModel  string
	gotConfig *genai.GenerateContentConfig
	gotText   string
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotConfig = cfg
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.gotText = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	t.Run("joins text parts and passes settings", func(t *testing.T) {
		fm := &fakeModels{resp: textResponse(`{"insights":`, `["a"]}`)}
		c := newWithModels(fm, "gemini-1.5-flash", nil)

		text, err := c.Complete(context.Background(), llm.Request{Prompt: "analyze", MaxTokens: 1000, Temperature: 0.3})
		require.NoError(t, err)
		assert.Equal(t, `{"insights":["a"]}`, text)
		assert.Equal(t, "gemini-1.5-flash", fm.gotModel)
		assert.Equal(t, "analyze", fm.gotText)
		assert.Equal(t, int32(1000), fm.gotConfig.MaxOutputTokens)
		require.NotNil(t, fm.gotConfig.Temperature)
		assert.InDelta(t, 0.3, *fm.gotConfig.Temperature, 1e-6)
		assert.Equal(t, Name, c.Name())
	})

	t.Run("safety finish reason", func(t *testing.T) {
		resp := textResponse("partial")
		resp.Candidates[0].FinishReason = genai.FinishReasonSafety
		c := newWithModels(&fakeModels{resp: resp}, "m", nil)

		_, err := c.Complete(context.Background(), llm.Request{Prompt: "p"})
		assert.ErrorIs(t, err, llm.ErrContentBlocked)
	})

	t.Run("blocked prompt", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}
		c := newWithModels(&fakeModels{resp: resp}, "m", nil)

		_, err := c.Complete(context.Background(), llm.Request{Prompt: "p"})
		assert.ErrorIs(t, err, llm.ErrContentBlocked)
	})

	t.Run("no candidates", func(t *testing.T) {
		c := newWithModels(&fakeModels{resp: &genai.GenerateContentResponse{}}, "m", nil)
		_, err := c.Complete(context.Background(), llm.Request{Prompt: "p"})
		assert.ErrorIs(t, err, llm.ErrEmptyResponse)
	})

	t.Run("api error is wrapped", func(t *testing.T) {
		apiErr := errors.New("quota exceeded")
		c := newWithModels(&fakeModels{err: apiErr}, "m", nil)
		_, err := c.Complete(context.Background(), llm.Request{Prompt: "p"})
		assert.ErrorIs(t, err, apiErr)
	})

	t.Run("empty prompt", func(t *testing.T) {
		c := newWithModels(&fakeModels{}, "m", nil)
		_, err := c.Complete(context.Background(), llm.Request{Prompt: " "})
		assert.Error(t, err)
	})
}

func TestNewRequiresKeyAndModel(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), config.LLMConfig{GeminiModel: "m"}, nil)
	assert.ErrorIs(t, err, llm.ErrInvalidConfig)

	_, err = New(context.Background(), config.LLMConfig{GeminiAPIKey: "k"}, nil)
	assert.ErrorIs(t, err, llm.ErrInvalidConfig)
}
