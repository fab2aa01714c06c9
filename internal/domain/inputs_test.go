package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputValidation(t *testing.T) {
	t.Parallel()

	validContent := ContentInput{
		Platform:       "linkedin",
		ContentType:    "feature_announcement",
		SourceMaterial: "We shipped CSV export",
	}

	tests := []struct {
		name      string
		input     Input
		wantField string
	}{
		{"transcript ok", TranscriptInput{Content: "user complained export button was disabled"}, ""},
		{"transcript empty", TranscriptInput{Title: "t"}, "content"},
		{"transcript too large", TranscriptInput{Content: strings.Repeat("a", MaxInputBytes+1)}, "content"},
		{"competitor ok", CompetitorInput{CompetitorData: "Acme launched pricing v2"}, ""},
		{"competitor blank", CompetitorInput{CompetitorData: "\n\t"}, "competitor_data"},
		{"content ok", validContent, ""},
		{"content bad platform", ContentInput{Platform: "myspace", ContentType: "blog_post", SourceMaterial: "x"}, "platform"},
		{"content bad type", ContentInput{Platform: "blog", ContentType: "haiku", SourceMaterial: "x"}, "content_type"},
		{"content empty source", ContentInput{Platform: "blog", ContentType: "blog_post"}, "source_material"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.input.Validate()
			if tc.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tc.wantField)
		})
	}
}

func TestInputKindsAndSizes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindTranscriptAnalysis, TranscriptInput{}.Kind())
	assert.Equal(t, KindCompetitorAnalysis, CompetitorInput{}.Kind())
	assert.Equal(t, KindContentGeneration, ContentInput{}.Kind())

	assert.Equal(t, 5, TranscriptInput{Content: "hello"}.Size())
	assert.Equal(t, 3, CompetitorInput{CompetitorData: "abc"}.Size())
	assert.Equal(t, 2, ContentInput{SourceMaterial: "hi"}.Size())
}

func TestNewActivityLogEntry(t *testing.T) {
	t.Parallel()

	recordID := uuid.New()
	entry, err := NewActivityLogEntry(recordID, PhaseStarted, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, recordID, entry.WorkRecordID)
	assert.NotNil(t, entry.Metadata)
	assert.False(t, entry.Timestamp.IsZero())

	next, err := NewActivityLogEntry(recordID, PhaseCompleted, map[string]any{"k": 1})
	require.NoError(t, err)
	assert.Less(t, entry.ID, next.ID, "entry ids sort by creation time")

	_, err = NewActivityLogEntry(recordID, Phase("paused"), nil)
	assert.ErrorIs(t, err, ErrInvalidPhase)

	_, err = NewActivityLogEntry(uuid.Nil, PhaseFailed, nil)
	assert.ErrorIs(t, err, ErrInvalidID)
}
