package trace

import "strings"

// Markers holds the substring heuristics used to classify iterations.
// The defaults mirror what the RLM sandbox actually emits; all of them are
// fuzzy string matches, best-effort rather than exact.
type Markers struct {
	// Error substrings: an output containing any of these marks the
	// iteration as failed.
	Errors []string
	// Submit marks the code that declares the final answer.
	Submit string
	// NestedCalls are code substrings that each count as one extra LLM
	// call on top of the iteration count.
	NestedCalls []string
	// FileHeader delimits embedded files inside a context variable's
	// string form.
	FileHeader string
}

// DefaultMarkers returns the standard marker set.
func DefaultMarkers() Markers {
	return Markers{
		Errors: []string{
			"Traceback (most recent call last)",
			"Error:",
			"Exception:",
		},
		Submit:      "SUBMIT(",
		NestedCalls: []string{"llm_query(", "llm_query_batched("},
		FileHeader:  "=== File:",
	}
}

// OutputFailed reports whether output contains any error marker.
func (m Markers) OutputFailed(output string) bool {
	for _, e := range m.Errors {
		if strings.Contains(output, e) {
			return true
		}
	}
	return false
}

// CodeSubmits reports whether code contains the submit marker.
func (m Markers) CodeSubmits(code string) bool {
	return m.Submit != "" && strings.Contains(code, m.Submit)
}

// CountNestedCalls returns the total number of nested-call marker
// occurrences in code.
func (m Markers) CountNestedCalls(code string) int {
	n := 0
	for _, c := range m.NestedCalls {
		n += strings.Count(code, c)
	}
	return n
}

// CountFiles returns the number of embedded file headers in a context
// variable's string form, defaulting to 1 when none are found.
func (m Markers) CountFiles(value string) int {
	if m.FileHeader == "" {
		return 1
	}
	if n := strings.Count(value, m.FileHeader); n > 0 {
		return n
	}
	return 1
}
