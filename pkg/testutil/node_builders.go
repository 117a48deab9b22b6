// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/leadflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test Node with default values that can be overridden.
func CreateTestNode(nodeType models.NodeType, config models.NodeConfig, overrides ...func(*models.Node)) models.Node {
	node := models.Node{
		ID:     uuid.New().String(),
		Type:   nodeType,
		Label:  "Test " + string(nodeType),
		Config: config,
	}

	for _, override := range overrides {
		override(&node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithLabel sets the node label.
func WithLabel(label string) func(*models.Node) {
	return func(n *models.Node) {
		n.Label = label
	}
}

// CreateTestBusiness creates a business owned by user-1 with contact details filled in.
func CreateTestBusiness(overrides ...func(*models.Business)) *models.Business {
	rating := 4.8
	business := &models.Business{
		ID:       uuid.New().String(),
		UserID:   "user-1",
		Name:     "Joe's Diner",
		Email:    "joe@diner.test",
		Phone:    "+15550123",
		Website:  "https://diner.test",
		Category: "Restaurant",
		Rating:   &rating,
	}

	for _, override := range overrides {
		override(business)
	}

	return business
}

// CreateTestContext builds an execution context for business with optional variables.
func CreateTestContext(business *models.Business, variables map[string]any) *models.ExecutionContext {
	userID := "user-1"
	if business != nil {
		userID = business.UserID
	}

	return models.NewExecutionContext(uuid.New().String(), "workflow-1", userID, business, variables)
}

// Graph assembles a workflow graph from nodes and edges.
func Graph(nodes []models.Node, edges ...models.Edge) models.WorkflowGraph {
	return models.WorkflowGraph{Nodes: nodes, Edges: edges}
}

// Edge connects source to target on the default handle.
func Edge(source, target string) models.Edge {
	return models.Edge{ID: source + "->" + target, Source: source, Target: target}
}

// HandleEdge connects source to target on handle.
func HandleEdge(source, handle, target string) models.Edge {
	return models.Edge{ID: source + ":" + handle + "->" + target, Source: source, Target: target, SourceHandle: handle}
}
