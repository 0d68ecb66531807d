package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occidens/org-async/internal/job"
	"github.com/occidens/org-async/internal/journal"
	"github.com/occidens/org-async/internal/log"
	"github.com/occidens/org-async/internal/stack"
)

// fakeStarter records launched jobs without spawning processes.
type fakeStarter struct {
	started []*job.Job
	err     error
}

func (f *fakeStarter) Start(_ context.Context, j *job.Job) error {
	if f.err != nil {
		return f.err
	}
	j.Status = job.StatusRunning
	f.started = append(f.started, j)
	return nil
}

func newTestServer(t *testing.T, apiKey string) (*Server, *fakeStarter, *stack.Stack, *journal.Journal) {
	t.Helper()

	jr, err := journal.Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { jr.Close() })

	st := stack.New()
	starter := &fakeStarter{}
	s := New(Config{Listen: "127.0.0.1:0", APIKey: apiKey}, starter, st, jr, log.WithComponent("api"))
	return s, starter, st, jr
}

func doRequest(t *testing.T, s *Server, method, path, apiKey string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")

	rec := doRequest(t, s, http.MethodGet, "/v1/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestAuth(t *testing.T) {
	s, _, _, _ := newTestServer(t, "secret")

	rec := doRequest(t, s, http.MethodGet, "/v1/health", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/health", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/health", "secret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListJobs(t *testing.T) {
	s, _, st, jr := newTestServer(t, "")

	st.Put(stack.Summary{ID: "live-1", Origin: "o", Status: job.StatusRunning, CreatedAt: time.Now()})
	require.NoError(t, jr.Append(context.Background(), journal.Entry{
		JobID:       "done-1",
		Origin:      "o",
		Status:      job.StatusExited,
		CreatedAt:   time.Now().Add(-time.Second),
		CompletedAt: time.Now(),
		Result:      "2",
	}))

	rec := doRequest(t, s, http.MethodGet, "/v1/jobs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listJobsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Running, 1)
	assert.Equal(t, "live-1", resp.Running[0].ID)
	require.Len(t, resp.Recent, 1)
	assert.Equal(t, "done-1", resp.Recent[0].JobID)
	assert.Equal(t, "2", resp.Recent[0].Result)
}

func TestGetJob_FromStack(t *testing.T) {
	s, _, st, _ := newTestServer(t, "")
	st.Put(stack.Summary{ID: "abc", Status: job.StatusRunning})

	rec := doRequest(t, s, http.MethodGet, "/v1/jobs/abc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp stack.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc", resp.ID)
}

func TestGetJob_FromJournal(t *testing.T) {
	s, _, _, jr := newTestServer(t, "")
	require.NoError(t, jr.Append(context.Background(), journal.Entry{
		JobID:       "xyz",
		Origin:      "o",
		Status:      job.StatusFailed,
		CreatedAt:   time.Now(),
		CompletedAt: time.Now(),
	}))

	rec := doRequest(t, s, http.MethodGet, "/v1/jobs/xyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp journalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "xyz", resp.JobID)
	assert.Equal(t, job.StatusFailed, resp.Status)
}

func TestGetJob_NotFound(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")

	rec := doRequest(t, s, http.MethodGet, "/v1/jobs/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateJob(t *testing.T) {
	s, starter, _, _ := newTestServer(t, "")

	body := []byte(`{"origin": "api", "work": "(+ 1 1)", "setup": "(setq x 1)"}`)
	rec := doRequest(t, s, http.MethodPost, "/v1/jobs", "", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, job.StatusRunning, resp.Status)

	require.Len(t, starter.started, 1)
	assert.Equal(t, "api", starter.started[0].Origin)
	assert.Equal(t, job.Form("(+ 1 1)"), starter.started[0].Work)
	assert.Equal(t, job.Form("(setq x 1)"), starter.started[0].Setup)
}

func TestCreateJob_Validation(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")

	rec := doRequest(t, s, http.MethodPost, "/v1/jobs", "", []byte(`{"origin": "api"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/jobs", "", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_StartFailure(t *testing.T) {
	s, starter, _, _ := newTestServer(t, "")
	starter.err = assert.AnError

	body := []byte(`{"origin": "api", "work": "(+ 1"}`)
	rec := doRequest(t, s, http.MethodPost, "/v1/jobs", "", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
