// Package recorder turns a completed RLM run into a canonical trace and
// persists it.
package recorder

import (
	"fmt"
	"strings"
	"time"

	"github.com/rlmlab/rlmtrace/internal/engine"
	"github.com/rlmlab/rlmtrace/internal/trace"
)

// TraceWriter persists a finished trace. Implemented by store.Store.
type TraceWriter interface {
	Save(t trace.Trace) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Input is one named variable supplied to the run, in its string form.
type Input struct {
	Name  string
	Value string
}

// Recorder builds traces from run results and writes them through a
// TraceWriter in a single attempt.
type Recorder struct {
	writer  TraceWriter
	markers trace.Markers
	clock   Clock
}

// New creates a Recorder using the default marker set.
func New(writer TraceWriter) *Recorder {
	return &Recorder{
		writer:  writer,
		markers: trace.DefaultMarkers(),
		clock:   realClock{},
	}
}

// NewWithMarkers creates a Recorder with a custom marker set and clock
// (used by tests and by deployments whose sandbox emits different error
// text).
func NewWithMarkers(writer TraceWriter, markers trace.Markers, clock Clock) *Recorder {
	if clock == nil {
		clock = realClock{}
	}
	return &Recorder{writer: writer, markers: markers, clock: clock}
}

// Record normalizes result into a trace stored under runID and writes it,
// overwriting any prior trace with that id. The trace is returned even when
// the write fails; the write error is surfaced alongside it.
//
// Success per iteration is the absence of any configured error marker in
// its output. is_final is set on the first step whose code contains the
// submit marker, or on the last step when none does. llm_calls_used is the
// iteration count plus nested-call marker occurrences across all code — an
// approximation, not an exact call count.
func (r *Recorder) Record(result engine.RunResult, runID, model, question string, inputs []Input) (trace.Trace, error) {
	iterations := make([]trace.Iteration, 0, len(result.Steps))

	finalIdx := len(result.Steps) - 1
	for i, step := range result.Steps {
		if r.markers.CodeSubmits(step.Code) {
			finalIdx = i
			break
		}
	}

	var allCode strings.Builder
	for i, step := range result.Steps {
		iterations = append(iterations, trace.Iteration{
			Iteration: i + 1,
			Reasoning: step.Reasoning,
			Code:      step.Code,
			Output:    step.Output,
			Success:   !r.markers.OutputFailed(step.Output),
			IsFinal:   i == finalIdx,
		})
		allCode.WriteString(step.Code)
		allCode.WriteString("\n")
	}

	contextVars := make([]trace.ContextVariable, 0, len(inputs))
	for _, in := range inputs {
		contextVars = append(contextVars, trace.ContextVariable{
			Name:      in.Name,
			SizeChars: len(in.Value),
			NFiles:    r.markers.CountFiles(in.Value),
		})
	}

	t := trace.Trace{
		RunID:            runID,
		Timestamp:        trace.FormatTimestamp(r.clock.Now()),
		Question:         question,
		Model:            model,
		ContextVariables: contextVars,
		Iterations:       iterations,
		FinalAnswer:      result.Answer,
		IterationsUsed:   len(iterations),
		LLMCallsUsed:     len(iterations) + r.markers.CountNestedCalls(allCode.String()),
		TotalTokens:      result.Usage,
	}

	if err := r.writer.Save(t); err != nil {
		return t, fmt.Errorf("recording trace %s: %w", runID, err)
	}
	return t, nil
}
