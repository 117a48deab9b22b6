package workflow

import (
	"strings"

	"github.com/dukex/leadflow/pkg/models"
)

// Result is the outcome of one graph walk.
type Result struct {
	// Success is false when the run aborted or any node recorded a soft failure.
	Success     bool
	Logs        []string
	Err         error
	Failures    []models.NodeFailure
	Suspensions []models.Suspension
	// State is the variable bag at the end of the walk.
	State map[string]any
}

// Suspended reports whether at least one branch is waiting on a delay continuation.
func (r Result) Suspended() bool {
	return len(r.Suspensions) > 0
}

// ErrorMessage is the message persisted on the execution log, empty on success.
func (r Result) ErrorMessage() string {
	switch {
	case r.Err != nil:
		return r.Err.Error()
	case len(r.Failures) > 0:
		return r.Failures[0].Error
	default:
		return ""
	}
}

// LegacySuccess classifies a transcript the way stored executions were classified before
// results carried an explicit error: any line mentioning "Error" or "Failed" is a failure.
// It disagrees with Result for a graph without a start node, whose transcript mentions neither.
func LegacySuccess(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, "Error") || strings.Contains(line, "Failed") {
			return false
		}
	}

	return true
}
