// Package condition provides the branching node driven by the condition language.
package condition

import (
	"context"

	"github.com/dukex/leadflow/pkg/condition"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
)

type ConditionNode struct{}

func NewConditionNode() *ConditionNode { return &ConditionNode{} }

func (n *ConditionNode) Type() models.NodeType { return models.NodeTypeCondition }

// Execute routes to the "true" or "false" handle.
func (n *ConditionNode) Execute(_ context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.ConditionConfig)

	result := condition.Evaluate(config.Condition, ec)
	ec.Logf("🔀 Condition %q evaluated to %t", config.Condition, result)

	if result {
		return protocol.Route(models.HandleTrue), nil
	}

	return protocol.Route(models.HandleFalse), nil
}
