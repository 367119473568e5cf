package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning = false for healthy runner")
	}

	down := New("http://127.0.0.1:1")
	if down.IsRunning(context.Background()) {
		t.Error("IsRunning = true for unreachable runner")
	}
}

func TestRun(t *testing.T) {
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(RunResult{
			Steps: []Step{
				{Reasoning: "look at data", Code: "print(len(x))", Output: "10"},
				{Code: `SUBMIT("10")`, Output: ""},
			},
			Answer: "10",
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Run(context.Background(), Request{
		Model:    "gpt-4o-mini",
		Question: "How many rows?",
		MaxIters: 15,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotReq.Model != "gpt-4o-mini" || gotReq.MaxIters != 15 {
		t.Errorf("runner received %+v", gotReq)
	}
	if len(result.Steps) != 2 || result.Answer != "10" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestRunErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Run(context.Background(), Request{Model: "m"}); err == nil {
		t.Error("Run should fail on non-200 status")
	}
}
