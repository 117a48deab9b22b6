package models

import (
	"fmt"
	"maps"
	"time"
)

// NodeFailure is a soft, per-node failure: the run continued but must not be reported as successful.
type NodeFailure struct {
	NodeID   string   `json:"node_id"`
	NodeType NodeType `json:"node_type"`
	Error    string   `json:"error"`
}

// Suspension marks a branch parked on a delay node until ResumeAfter elapses.
type Suspension struct {
	NodeID      string        `json:"node_id"`
	ResumeAfter time.Duration `json:"resume_after"`
}

// ExecutionContext is the mutable per-run state shared by the walker and the node handlers.
// BusinessData is a snapshot taken at run start and is never refreshed during the run.
type ExecutionContext struct {
	ExecutionID  string
	WorkflowID   string
	UserID       string
	BusinessID   string
	BusinessData BusinessData
	Variables    map[string]any

	logs        []string
	failures    []NodeFailure
	suspensions []Suspension
}

// NewExecutionContext builds a fresh context. A nil variables map starts empty; a non-nil one is copied.
func NewExecutionContext(executionID, workflowID, userID string, business *Business, variables map[string]any) *ExecutionContext {
	vars := make(map[string]any, len(variables))
	maps.Copy(vars, variables)

	ec := &ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		UserID:      userID,
		Variables:   vars,
	}

	if business != nil {
		ec.BusinessID = business.ID
		ec.BusinessData = business.Data()
	} else {
		ec.BusinessData = BusinessData{}
	}

	return ec
}

// Logf appends a line to the run transcript.
func (ec *ExecutionContext) Logf(format string, args ...any) {
	ec.logs = append(ec.logs, fmt.Sprintf(format, args...))
}

// Logs returns a copy of the transcript.
func (ec *ExecutionContext) Logs() []string {
	return append([]string(nil), ec.logs...)
}

// Fail records a soft failure for node and writes it to the transcript.
func (ec *ExecutionContext) Fail(node Node, err error) {
	ec.failures = append(ec.failures, NodeFailure{NodeID: node.ID, NodeType: node.Type, Error: err.Error()})
	ec.Logf("❌ %s node %s Failed: %v", node.Type, node.DisplayName(), err)
}

// Failures returns the soft failures recorded so far.
func (ec *ExecutionContext) Failures() []NodeFailure {
	return append([]NodeFailure(nil), ec.failures...)
}

// Suspend parks the branch at node until d has elapsed.
func (ec *ExecutionContext) Suspend(node Node, d time.Duration) {
	ec.suspensions = append(ec.suspensions, Suspension{NodeID: node.ID, ResumeAfter: d})
}

// Suspensions returns the delay continuations requested during the run.
func (ec *ExecutionContext) Suspensions() []Suspension {
	return append([]Suspension(nil), ec.suspensions...)
}

// SetVariable writes into the variable bag.
func (ec *ExecutionContext) SetVariable(name string, value any) {
	if ec.Variables == nil {
		ec.Variables = make(map[string]any)
	}

	ec.Variables[name] = value
}

// State returns a copy of the variable bag for persistence.
func (ec *ExecutionContext) State() map[string]any {
	state := make(map[string]any, len(ec.Variables))
	maps.Copy(state, ec.Variables)

	return state
}
