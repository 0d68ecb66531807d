package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/occidens/org-async/internal/job"
	"github.com/occidens/org-async/internal/journal"
	"github.com/occidens/org-async/internal/stack"
)

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

type listJobsResponse struct {
	Running []stack.Summary `json:"running"`
	Recent  []journalEntry  `json:"recent"`
}

type journalEntry struct {
	JobID        string     `json:"job_id"`
	Origin       string     `json:"origin"`
	Status       job.Status `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  time.Time  `json:"completed_at"`
	DurationMS   int64      `json:"duration_ms"`
	Result       string     `json:"result,omitempty"`
	Error        *string    `json:"error,omitempty"`
	ArtifactHash string     `json:"artifact_hash,omitempty"`
}

type createJobRequest struct {
	Origin   string `json:"origin"`
	Encoding string `json:"encoding,omitempty"`
	Setup    string `json:"setup,omitempty"`
	Work     string `json:"work"`
}

type createJobResponse struct {
	ID     string     `json:"id"`
	Status job.Status `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	resp := listJobsResponse{
		Running: s.stack.Running(),
		Recent:  []journalEntry{},
	}
	if resp.Running == nil {
		resp.Running = []stack.Summary{}
	}

	if s.journal != nil {
		entries, err := s.journal.Recent(r.Context(), 50)
		if err != nil {
			s.logger.Error("failed to read journal", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read journal")
			return
		}
		for _, e := range entries {
			resp.Recent = append(resp.Recent, toJournalEntry(e))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if summary, ok := s.stack.Get(id); ok {
		writeJSON(w, http.StatusOK, summary)
		return
	}

	if s.journal != nil {
		entry, err := s.journal.Get(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, toJournalEntry(*entry))
			return
		}
		if !errors.Is(err, journal.ErrNotFound) {
			s.logger.Error("failed to read journal", "job_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read journal")
			return
		}
	}

	writeError(w, http.StatusNotFound, "job not found")
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Work == "" {
		writeError(w, http.StatusBadRequest, "work is required")
		return
	}

	j := job.New(req.Origin, job.Form(req.Work))
	if req.Encoding != "" {
		j.Encoding = req.Encoding
	}
	j.Setup = job.Form(req.Setup)

	if err := s.starter.Start(r.Context(), j); err != nil {
		s.logger.Error("failed to start job", "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, createJobResponse{ID: j.ID, Status: j.Status})
}

func toJournalEntry(e journal.Entry) journalEntry {
	return journalEntry{
		JobID:        e.JobID,
		Origin:       e.Origin,
		Status:       e.Status,
		CreatedAt:    e.CreatedAt,
		CompletedAt:  e.CompletedAt,
		DurationMS:   e.Duration.Milliseconds(),
		Result:       e.Result,
		Error:        e.LastError,
		ArtifactHash: e.ArtifactHash,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
