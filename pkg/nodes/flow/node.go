// Package flow provides the structural nodes: entry points, markers, set and filter.
package flow

import (
	"context"
	"maps"

	"github.com/dukex/leadflow/pkg/condition"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
)

// PassthroughTypes are the node types that only mark structure and follow their default edges.
var PassthroughTypes = []models.NodeType{
	models.NodeTypeStart,
	models.NodeTypeMerge,
	models.NodeTypeSplitInBatches,
	models.NodeTypeWebhook,
	models.NodeTypeSchedule,
}

// PassthroughNode does nothing and continues.
type PassthroughNode struct {
	nodeType models.NodeType
}

func NewPassthroughNode(nodeType models.NodeType) *PassthroughNode {
	return &PassthroughNode{nodeType: nodeType}
}

func (n *PassthroughNode) Type() models.NodeType { return n.nodeType }

func (n *PassthroughNode) Execute(context.Context, models.Node, *models.ExecutionContext) (protocol.Outcome, error) {
	return protocol.Continue(), nil
}

// SetNode copies literal values into the variable bag.
type SetNode struct{}

func NewSetNode() *SetNode { return &SetNode{} }

func (n *SetNode) Type() models.NodeType { return models.NodeTypeSet }

func (n *SetNode) Execute(_ context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.SetConfig)

	if len(config.Values) > 0 {
		if ec.Variables == nil {
			ec.Variables = make(map[string]any, len(config.Values))
		}

		maps.Copy(ec.Variables, config.Values)
		ec.Logf("📝 Set %d variable(s)", len(config.Values))
	}

	return protocol.Continue(), nil
}

// FilterNode stops the branch when its condition is false.
type FilterNode struct{}

func NewFilterNode() *FilterNode { return &FilterNode{} }

func (n *FilterNode) Type() models.NodeType { return models.NodeTypeFilter }

func (n *FilterNode) Execute(_ context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.FilterConfig)
	if config.Condition == "" {
		return protocol.Continue(), nil
	}

	if !condition.Evaluate(config.Condition, ec) {
		ec.Logf("🔽 Filter %q did not match, stopping branch", config.Condition)

		return protocol.Stop(), nil
	}

	return protocol.Continue(), nil
}
