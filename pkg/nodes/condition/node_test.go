package condition_test

import (
	"context"
	"testing"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes/condition"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionNode_Routes(t *testing.T) {
	business := testutil.CreateTestBusiness(func(b *models.Business) { b.Website = "" })

	tests := []struct {
		expr string
		want string
	}{
		{"email", models.HandleTrue},
		{"website", models.HandleFalse},
		{"!website", models.HandleTrue},
		{`category == "Restaurant"`, models.HandleTrue},
		{`category != "Restaurant"`, models.HandleFalse},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ec := testutil.CreateTestContext(business, nil)
			node := testutil.CreateTestNode(models.NodeTypeCondition, models.ConditionConfig{Condition: tt.expr})

			outcome, err := condition.NewConditionNode().Execute(context.Background(), node, ec)

			require.NoError(t, err)
			assert.Equal(t, protocol.Route(tt.want), outcome)
			assert.Contains(t, ec.Logs()[0], "evaluated to "+tt.want)
		})
	}
}
