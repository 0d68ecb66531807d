package stack

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occidens/org-async/internal/job"
)

func TestPutAndGet(t *testing.T) {
	st := New()
	st.Put(Summary{ID: "a", Origin: "o", Status: job.StatusRunning, CreatedAt: time.Now()})

	got, ok := st.Get("a")
	require.True(t, ok)
	assert.Equal(t, job.StatusRunning, got.Status)

	_, ok = st.Get("missing")
	assert.False(t, ok)
}

func TestPut_ReplacesInPlace(t *testing.T) {
	st := New()
	st.Put(Summary{ID: "a", Status: job.StatusRunning})
	st.Put(Summary{ID: "b", Status: job.StatusRunning})
	st.Put(Summary{ID: "a", Status: job.StatusExited, Result: "2"})

	all := st.All()
	require.Len(t, all, 2)
	// Replacement keeps insertion order.
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, job.StatusExited, all[0].Status)
	assert.Equal(t, "2", all[0].Result)
	assert.Equal(t, "b", all[1].ID)
}

func TestRunning(t *testing.T) {
	st := New()
	st.Put(Summary{ID: "a", Status: job.StatusExited})
	st.Put(Summary{ID: "b", Status: job.StatusRunning})
	st.Put(Summary{ID: "c", Status: job.StatusFailed})

	running := st.Running()
	require.Len(t, running, 1)
	assert.Equal(t, "b", running[0].ID)
}

func TestRemove(t *testing.T) {
	st := New()
	st.Put(Summary{ID: "a", Status: job.StatusExited})
	st.Remove("a")
	st.Remove("a") // no-op

	assert.Empty(t, st.All())
}

func TestEviction_DropsOldestTerminal(t *testing.T) {
	st := New()
	st.maxEntries = 3

	st.Put(Summary{ID: "old", Status: job.StatusExited})
	st.Put(Summary{ID: "live", Status: job.StatusRunning})
	st.Put(Summary{ID: "done", Status: job.StatusFailed})
	st.Put(Summary{ID: "new", Status: job.StatusExited})

	all := st.All()
	require.Len(t, all, 3)
	_, ok := st.Get("old")
	assert.False(t, ok, "oldest terminal entry should be evicted")
	_, ok = st.Get("live")
	assert.True(t, ok, "running jobs are never evicted")
}

func TestEviction_NeverEvictsRunning(t *testing.T) {
	st := New()
	st.maxEntries = 2

	for i := 0; i < 5; i++ {
		st.Put(Summary{ID: fmt.Sprintf("run-%d", i), Status: job.StatusRunning})
	}

	assert.Len(t, st.All(), 5)
}
