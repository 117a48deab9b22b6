package custom_test

import (
	"context"
	"testing"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes/custom"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, handler *custom.CustomNode, code string, vars map[string]any) (protocol.Outcome, error) {
	t.Helper()

	node := testutil.CreateTestNode(models.NodeTypeCustom, models.CustomConfig{Code: code})
	ec := testutil.CreateTestContext(testutil.CreateTestBusiness(), vars)

	return handler.Execute(context.Background(), node, ec)
}

func TestCustomNode_Gates(t *testing.T) {
	handler := custom.NewCustomNode()

	tests := []struct {
		name string
		code string
		want protocol.Outcome
	}{
		{"empty code continues", "", protocol.Continue()},
		{"true expression", `business.category == "Restaurant"`, protocol.Continue()},
		{"false expression", `business.category == "Cafe"`, protocol.Stop()},
		{"return statement form", "return business.rating > 4;", protocol.Continue()},
		{"company alias", `company.name == "Joe's Diner"`, protocol.Continue()},
		{"variables", "variables.score >= 10", protocol.Continue()},
		{"truthy string", "business.email", protocol.Continue()},
		{"falsy missing value", "variables.missing", protocol.Stop()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := run(t, handler, tt.code, map[string]any{"score": 12})

			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)
		})
	}
}

func TestCustomNode_MissingValuesAreFalsy(t *testing.T) {
	handler := custom.NewCustomNode()

	tests := []struct {
		name string
		code string
	}{
		{"nil rating compared", "return company.rating > 4;"},
		{"missing variable compared", "return variables.missing > 1"},
		{"field of missing variable", "variables.missing.total == 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := testutil.CreateTestNode(models.NodeTypeCustom, models.CustomConfig{Code: tt.code})
			ec := testutil.CreateTestContext(testutil.CreateTestBusiness(), nil)
			ec.BusinessData["rating"] = nil

			outcome, err := handler.Execute(context.Background(), node, ec)

			require.NoError(t, err)
			assert.Equal(t, protocol.Stop(), outcome)
		})
	}
}

func TestCustomNode_RuntimeErrorAborts(t *testing.T) {
	_, err := run(t, custom.NewCustomNode(), `business.name + 1 > 2`, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluation failed")
}

func TestCustomNode_CompileErrorAborts(t *testing.T) {
	_, err := run(t, custom.NewCustomNode(), "business.name ==", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile error")
}

func TestCustomNode_ReusesCompiledProgram(t *testing.T) {
	handler := custom.NewCustomNode()

	for range 3 {
		outcome, err := run(t, handler, "variables.score > 1", map[string]any{"score": 2})
		require.NoError(t, err)
		assert.Equal(t, protocol.Continue(), outcome)
	}
}
