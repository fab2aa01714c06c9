package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	boom := errors.New("provider down")

	assert.True(t, p.ShouldRetry(1, boom))
	assert.True(t, p.ShouldRetry(2, boom))
	assert.False(t, p.ShouldRetry(3, boom), "third attempt is the last")
	assert.False(t, p.ShouldRetry(1, nil))
	assert.False(t, p.ShouldRetry(1, Permanent(boom)))
	assert.False(t, p.ShouldRetry(1, fmt.Errorf("wrapped: %w", Permanent(boom))))
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	boom := errors.New("record missing")
	p := Permanent(boom)
	assert.True(t, IsPermanent(p))
	assert.ErrorIs(t, p, boom)
	assert.Equal(t, boom.Error(), p.Error())
	assert.False(t, IsPermanent(boom))
	assert.NoError(t, Permanent(nil))
}

func TestJob(t *testing.T) {
	t.Parallel()

	job := Job{Kind: domain.KindCompetitorAnalysis, RecordID: uuid.New()}
	assert.NoError(t, job.Validate())
	assert.Equal(t, "consult:competitor_analysis", job.TaskType())

	assert.ErrorIs(t, Job{Kind: "poem", RecordID: uuid.New()}.Validate(), domain.ErrInvalidKind)
	assert.ErrorIs(t, Job{Kind: domain.KindContentGeneration}.Validate(), domain.ErrInvalidID)
}

func TestUnknownHandle(t *testing.T) {
	t.Parallel()

	st := UnknownHandle("01HX")
	assert.Equal(t, StatePending, st.State)
	assert.Equal(t, "Task is waiting to be processed", st.Message)
	assert.Equal(t, "Task failed", StateFailure.Message())
}
