// Package absplit provides the weighted random A/B branching node.
package absplit

import (
	"context"
	"math/rand/v2"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
)

// ABSplitNode draws a number in [0,100) and takes handle "a" when it is below the weight.
type ABSplitNode struct {
	draw func() float64
}

// NewABSplitNode uses draw as the source of uniform values in [0,1). A nil draw uses math/rand/v2.
func NewABSplitNode(draw func() float64) *ABSplitNode {
	if draw == nil {
		draw = rand.Float64
	}

	return &ABSplitNode{draw: draw}
}

func (n *ABSplitNode) Type() models.NodeType { return models.NodeTypeABSplit }

func (n *ABSplitNode) Execute(_ context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.ABSplitConfig)
	weight := config.WeightOrDefault()
	value := n.draw() * 100

	handle := models.HandleB
	if value < weight {
		handle = models.HandleA
	}

	ec.Logf("🎲 A/B split drew %.2f against weight %.0f, taking path %s", value, weight, handle)

	return protocol.Route(handle), nil
}
