package engine

import "github.com/rlmlab/rlmtrace/internal/trace"

// Step is one raw step of an RLM trajectory as handed back by the runner.
// Reasoning is optional; Error carries the runner's own failure flag when it
// reports one (the recorder still applies its marker heuristics on Output).
type Step struct {
	Reasoning string `json:"reasoning,omitempty"`
	Code      string `json:"code"`
	Output    string `json:"output"`
	Error     bool   `json:"error,omitempty"`
}

// RunResult is the completed output of one RLM run: the ordered trajectory,
// the declared answer, and optionally aggregate token usage.
type RunResult struct {
	Steps  []Step            `json:"steps"`
	Answer string            `json:"answer"`
	Usage  *trace.TokenUsage `json:"usage,omitempty"`
}

// Request describes one live RLM run.
type Request struct {
	Model     string            `json:"model"`
	Question  string            `json:"question"`
	Signature string            `json:"signature,omitempty"`
	Inputs    map[string]string `json:"inputs,omitempty"`
	MaxIters  int               `json:"max_iterations,omitempty"`
}
