// Package delay provides the node that parks a branch until a delayed continuation resumes it.
package delay

import (
	"context"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
)

type DelayNode struct{}

func NewDelayNode() *DelayNode { return &DelayNode{} }

func (n *DelayNode) Type() models.NodeType { return models.NodeTypeDelay }

// Duration converts the configured hours and minutes into a duration.
func Duration(config models.DelayConfig) time.Duration {
	return time.Duration(float64(config.Hours)*float64(time.Hour)) +
		time.Duration(float64(config.Minutes)*float64(time.Minute))
}

// Execute suspends the branch; the worker re-enqueues the rest of the graph after the delay.
func (n *DelayNode) Execute(_ context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.DelayConfig)

	d := Duration(config)
	if d <= 0 {
		ec.Logf("⏳ Delay of 0 configured on %s, continuing immediately", node.DisplayName())

		return protocol.Continue(), nil
	}

	ec.Logf("⏳ Delaying for %s, remaining steps resume at %s", d, time.Now().Add(d).UTC().Format(time.RFC3339))

	return protocol.Suspend(d), nil
}
