package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occidens/org-async/internal/job"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndGet(t *testing.T) {
	jr := openTestJournal(t)
	ctx := context.Background()

	created := time.Now().Add(-2 * time.Second)
	completed := time.Now()
	errMsg := "worker exited with code 3"

	e := Entry{
		JobID:        "job-1",
		Origin:       "buffer:notes.org",
		Status:       job.StatusFailed,
		CreatedAt:    created,
		CompletedAt:  completed,
		Duration:     1500 * time.Millisecond,
		LastError:    &errMsg,
		ArtifactHash: "abc123",
	}
	require.NoError(t, jr.Append(ctx, e))

	got, err := jr.Get(ctx, "job-1")
	require.NoError(t, err)

	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "buffer:notes.org", got.Origin)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	require.NotNil(t, got.LastError)
	assert.Equal(t, errMsg, *got.LastError)
	assert.Equal(t, "abc123", got.ArtifactHash)
	assert.WithinDuration(t, completed, got.CompletedAt, time.Millisecond)
}

func TestGet_NotFound(t *testing.T) {
	jr := openTestJournal(t)

	_, err := jr.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAppend_RejectsNonTerminal(t *testing.T) {
	jr := openTestJournal(t)

	err := jr.Append(context.Background(), Entry{
		JobID:       "job-1",
		Status:      job.StatusRunning,
		CreatedAt:   time.Now(),
		CompletedAt: time.Now(),
	})
	assert.Error(t, err)
}

func TestAppend_RetryReplacesEarlierAttempt(t *testing.T) {
	jr := openTestJournal(t)
	ctx := context.Background()

	first := Entry{
		JobID:       "job-1",
		Origin:      "o",
		Status:      job.StatusFailed,
		CreatedAt:   time.Now(),
		CompletedAt: time.Now(),
	}
	require.NoError(t, jr.Append(ctx, first))

	second := first
	second.Status = job.StatusExited
	second.Result = "(1 2 3)"
	second.CompletedAt = time.Now().Add(time.Second)
	require.NoError(t, jr.Append(ctx, second))

	got, err := jr.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusExited, got.Status)
	assert.Equal(t, "(1 2 3)", got.Result)
}

func TestRecent(t *testing.T) {
	jr := openTestJournal(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, jr.Append(ctx, Entry{
			JobID:       id,
			Origin:      "o",
			Status:      job.StatusExited,
			CreatedAt:   base,
			CompletedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := jr.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].JobID)
	assert.Equal(t, "b", entries[1].JobID)
}

func TestRecent_Empty(t *testing.T) {
	jr := openTestJournal(t)

	entries, err := jr.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
