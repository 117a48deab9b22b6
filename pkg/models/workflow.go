package models

import (
	"errors"
	"fmt"
	"time"
)

// Branch handles used on edges leaving branching nodes.
const (
	HandleTrue  = "true"
	HandleFalse = "false"
	HandleA     = "a"
	HandleB     = "b"
	HandleError = "error"
)

var (
	// ErrNoStartNode is returned by Validate when the graph has no start node.
	ErrNoStartNode = errors.New("workflow has no start node")

	// ErrMultipleStartNodes is returned by Validate when the graph has more than one start node.
	ErrMultipleStartNodes = errors.New("workflow has more than one start node")
)

// Workflow is a user-authored outreach automation.
type Workflow struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"         validate:"required"`
	Name           string        `json:"name"            validate:"required,min=1"`
	TargetCategory string        `json:"target_category"`
	IsActive       bool          `json:"is_active"`
	Graph          WorkflowGraph `json:"graph"`
	LastRunAt      *time.Time    `json:"last_run_at,omitempty"`
	ExecutionCount int           `json:"execution_count"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Edge connects two nodes. SourceHandle names the branch on branching nodes and is empty otherwise.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"                 validate:"required"`
	Target       string `json:"target"                 validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// WorkflowGraph is the immutable-per-run definition walked by the executor.
type WorkflowGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// StartNode returns the first node of type start.
func (g *WorkflowGraph) StartNode() (Node, bool) {
	for _, node := range g.Nodes {
		if node.Type == NodeTypeStart {
			return node, true
		}
	}

	return Node{}, false
}

// Node looks a node up by id.
func (g *WorkflowGraph) Node(id string) (Node, bool) {
	for _, node := range g.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return Node{}, false
}

// Outgoing returns the edges leaving id whose handle equals handle, in edge-list order.
// The empty handle selects the default, unlabeled edges.
func (g *WorkflowGraph) Outgoing(id, handle string) []Edge {
	var edges []Edge

	for _, edge := range g.Edges {
		if edge.Source == id && edge.SourceHandle == handle {
			edges = append(edges, edge)
		}
	}

	return edges
}

// Validate checks the structural invariants: exactly one start node and edges between known nodes.
// Cycles are allowed.
func (g *WorkflowGraph) Validate() error {
	starts := 0
	ids := make(map[string]struct{}, len(g.Nodes))

	for _, node := range g.Nodes {
		if node.ID == "" {
			return errors.New("node without id")
		}

		if _, dup := ids[node.ID]; dup {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}

		ids[node.ID] = struct{}{}

		if node.Type == NodeTypeStart {
			starts++
		}
	}

	switch {
	case starts == 0:
		return ErrNoStartNode
	case starts > 1:
		return ErrMultipleStartNodes
	}

	for _, edge := range g.Edges {
		if _, ok := ids[edge.Source]; !ok {
			return fmt.Errorf("edge %s references unknown source %q", edge.ID, edge.Source)
		}

		if _, ok := ids[edge.Target]; !ok {
			return fmt.Errorf("edge %s references unknown target %q", edge.ID, edge.Target)
		}
	}

	return nil
}
