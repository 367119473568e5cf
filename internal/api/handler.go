// Package api exposes the trace store to the explorer UI and to scripted
// callers: two reads (list, load) and one write (record), plus the run
// history catalog. The handler is transport glue only; all trace semantics
// live in the recorder and store packages.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rlmlab/rlmtrace/internal/engine"
	"github.com/rlmlab/rlmtrace/internal/history"
	"github.com/rlmlab/rlmtrace/internal/recorder"
	"github.com/rlmlab/rlmtrace/internal/store"
	"github.com/rlmlab/rlmtrace/internal/trace"
)

const maxRecordBodySize = 10 << 20 // 10MB

// Deps holds the collaborators the HTTP surface needs.
type Deps struct {
	Store    *store.Store
	Recorder *recorder.Recorder
	History  *history.Store // optional; if nil, /history returns empty
	Token    string         // bearer token guarding POST /runs; empty disables auth
	StaticUI string         // directory served at /; empty disables
}

// NewHandler builds the explorer HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/runs", handleListRuns(deps))
	r.Get("/runs/{id}", handleGetRun(deps))
	r.Get("/history", handleHistory(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/runs", handleRecordRun(deps))
	})

	if deps.StaticUI != "" {
		r.Handle("/*", http.FileServer(http.Dir(deps.StaticUI)))
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs := deps.Store.List()
		if runs == nil {
			runs = []trace.Summary{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleGetRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		t, err := deps.Store.Load(id)
		if err != nil {
			// Invalid, missing, and corrupt are deliberately the same
			// answer; the storage layout is not the caller's business.
			httpError(w, http.StatusNotFound, "not_found_error", "no trace for run %q", id)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// RecordRequest is the POST /runs body: a completed run result plus the
// metadata needed to catalog it.
type RecordRequest struct {
	RunID    string           `json:"run_id"`
	Model    string           `json:"model"`
	Question string           `json:"question"`
	Result   engine.RunResult `json:"result"`
	Inputs   []InputVar       `json:"inputs"`
}

// InputVar is one named context variable in its string form.
type InputVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func handleRecordRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRecordBodySize)
		defer r.Body.Close()

		var req RecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.RunID == "" {
			req.RunID = "run-" + uuid.New().String()
		}
		if !store.ValidRunID(req.RunID) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "run_id must match [A-Za-z0-9_-]+")
			return
		}
		if len(req.Result.Steps) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "result.steps must not be empty")
			return
		}

		inputs := make([]recorder.Input, 0, len(req.Inputs))
		for _, in := range req.Inputs {
			inputs = append(inputs, recorder.Input{Name: in.Name, Value: in.Value})
		}

		t, err := deps.Recorder.Record(req.Result, req.RunID, req.Model, req.Question, inputs)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record trace: %v", err)
			return
		}

		if deps.History != nil {
			if err := deps.History.RecordTrace(t, "api"); err != nil {
				slog.Warn("trace recorded but history update failed", "run_id", t.RunID, "error", err)
			}
		}

		writeJSON(w, http.StatusCreated, t)
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = n
		}

		if deps.History == nil {
			writeJSON(w, http.StatusOK, []history.Entry{})
			return
		}
		entries, err := deps.History.Recent(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read history: %v", err)
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
