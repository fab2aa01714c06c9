package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/defineconsult/consult-api/internal/config"
	"github.com/defineconsult/consult-api/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{\"title\":\"x\"}"},"done":true}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(config.LLMConfig{OllamaBaseURL: srv.URL, OllamaModel: "llama3.1"}, nil)
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), llm.Request{Prompt: "write", MaxTokens: 1500, Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"x"}`, text)
	assert.False(t, got.Stream)
	assert.Equal(t, "llama3.1", got.Model)
	assert.Equal(t, 1500, got.Options.NumPredict)
	assert.InDelta(t, 0.7, got.Options.Temperature, 1e-6)
}

func TestCompleteErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantMsg: "status 500"},
		{name: "error field", status: http.StatusOK, body: `{"error":"model not found"}`, wantMsg: "model not found"},
		{name: "empty content", status: http.StatusOK, body: `{"message":{"content":""},"done":true}`, wantErr: llm.ErrEmptyResponse},
		{name: "garbage", status: http.StatusOK, body: `not json`, wantMsg: "decode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := New(config.LLMConfig{OllamaBaseURL: srv.URL}, nil)
			require.NoError(t, err)

			_, err = c.Complete(context.Background(), llm.Request{Prompt: "p"})
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			if tc.wantMsg != "" {
				assert.Contains(t, err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()
	_, err := New(config.LLMConfig{}, nil)
	assert.ErrorIs(t, err, llm.ErrInvalidConfig)
}
