package absplit_test

import (
	"context"
	"testing"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes/absplit"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weight(w float64) *models.FlexNumber {
	f := models.FlexNumber(w)

	return &f
}

func TestABSplitNode_Weights(t *testing.T) {
	tests := []struct {
		name   string
		weight *models.FlexNumber
		draw   float64
		want   string
	}{
		{"zero weight always b", weight(0), 0, models.HandleB},
		{"zero weight high draw", weight(0), 0.999, models.HandleB},
		{"full weight always a", weight(100), 0.9999, models.HandleA},
		{"full weight low draw", weight(100), 0, models.HandleA},
		{"default weight below", nil, 0.49, models.HandleA},
		{"default weight at threshold", nil, 0.5, models.HandleB},
		{"custom weight", weight(30), 0.31, models.HandleB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := absplit.NewABSplitNode(func() float64 { return tt.draw })
			node := testutil.CreateTestNode(models.NodeTypeABSplit, models.ABSplitConfig{Weight: tt.weight})
			ec := testutil.CreateTestContext(nil, nil)

			outcome, err := handler.Execute(context.Background(), node, ec)

			require.NoError(t, err)
			assert.Equal(t, protocol.Route(tt.want), outcome)
			require.Len(t, ec.Logs(), 1)
		})
	}
}

func TestABSplitNode_DefaultRandomSource(t *testing.T) {
	handler := absplit.NewABSplitNode(nil)
	node := testutil.CreateTestNode(models.NodeTypeABSplit, models.ABSplitConfig{Weight: weight(100)})

	for range 50 {
		outcome, err := handler.Execute(context.Background(), node, testutil.CreateTestContext(nil, nil))
		require.NoError(t, err)
		assert.Equal(t, models.HandleA, outcome.Handle)
	}
}
