// Package trace defines the persisted record of one RLM run and the
// marker heuristics used to derive per-iteration metadata.
package trace

import (
	"fmt"
	"time"
)

// TimestampFormat is the fixed wire format for Trace.Timestamp (always UTC).
const TimestampFormat = "2006-01-02T15:04:05Z"

// Trace is the immutable record of one completed RLM run. It is serialized
// as a single JSON document named <run_id>.json in the runs directory.
type Trace struct {
	RunID            string            `json:"run_id"`
	Timestamp        string            `json:"timestamp"`
	Question         string            `json:"question"`
	Model            string            `json:"model"`
	ContextVariables []ContextVariable `json:"context_variables"`
	Iterations       []Iteration       `json:"iterations"`
	FinalAnswer      string            `json:"final_answer"`
	IterationsUsed   int               `json:"iterations_used"`
	LLMCallsUsed     int               `json:"llm_calls_used"`
	TotalTokens      *TokenUsage       `json:"total_tokens,omitempty"`
}

// Iteration is one reasoning/code/output step within a run.
type Iteration struct {
	Iteration int    `json:"iteration"`
	Reasoning string `json:"reasoning"`
	Code      string `json:"code"`
	Output    string `json:"output"`
	Success   bool   `json:"success"`
	IsFinal   bool   `json:"is_final"`
}

// ContextVariable summarizes one input variable supplied to the run.
type ContextVariable struct {
	Name      string `json:"name"`
	SizeChars int    `json:"size_chars"`
	NFiles    int    `json:"n_files"`
}

// TokenUsage holds input/output token counts for a run.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Summary is the listing row for one stored trace.
type Summary struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Description string      `json:"description"`
	Question    string      `json:"question"`
	Model       string      `json:"model"`
	Iterations  int         `json:"iterations"`
	TotalTokens *TokenUsage `json:"total_tokens,omitempty"`
}

// Summarize builds the listing row for t. The iteration count falls back to
// len(iterations) when iterations_used is missing from the document, and a
// missing llm_calls_used counts as a single call.
func Summarize(t Trace) Summary {
	nIter := t.IterationsUsed
	if nIter == 0 {
		nIter = len(t.Iterations)
	}
	llmCalls := t.LLMCallsUsed
	if llmCalls == 0 {
		llmCalls = 1
	}

	description := fmt.Sprintf("%d iterations", nIter)
	if llmCalls > 1 {
		description = fmt.Sprintf("%d iterations, %d LLM calls", nIter, llmCalls)
	}

	return Summary{
		ID:          t.RunID,
		Label:       t.RunID,
		Description: description,
		Question:    t.Question,
		Model:       t.Model,
		Iterations:  nIter,
		TotalTokens: t.TotalTokens,
	}
}

// FormatTimestamp renders t in the fixed trace timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}
