package ai_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/mocks"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes/ai"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAINode_StoresResult(t *testing.T) {
	generator := new(mocks.MockTextGenerator)
	generator.On("GenerateContent", mock.Anything, ai.DefaultModel,
		"Write an intro for Joe's Diner\n\nContext:\nCategory Restaurant").
		Return("Hello Joe's Diner!", nil)

	node := testutil.CreateTestNode(models.NodeTypeGemini, models.AIConfig{
		Prompt:  "Write an intro for {business.name}",
		Context: "Category {business.category}",
	})
	ec := testutil.CreateTestContext(testutil.CreateTestBusiness(), nil)

	outcome, err := ai.NewAINode(models.NodeTypeGemini, generator, log.Discard()).Execute(context.Background(), node, ec)

	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(), outcome)
	assert.Equal(t, "Hello Joe's Diner!", ec.Variables["aiResult"])
	assert.Empty(t, ec.Failures())
	generator.AssertExpectations(t)
}

func TestAINode_CustomOutputAndModel(t *testing.T) {
	generator := new(mocks.MockTextGenerator)
	generator.On("GenerateContent", mock.Anything, "gemini-pro", "ping").Return("pong", nil)

	node := testutil.CreateTestNode(models.NodeTypeAgent, models.AIConfig{
		Prompt: "ping", Model: "gemini-pro", OutputVariable: "reply",
	})
	ec := testutil.CreateTestContext(nil, nil)

	_, err := ai.NewAINode(models.NodeTypeAgent, generator, log.Discard()).Execute(context.Background(), node, ec)

	require.NoError(t, err)
	assert.Equal(t, "pong", ec.Variables["reply"])
	assert.NotContains(t, ec.Variables, "aiResult")
}

func TestAINode_WithDefaultModel(t *testing.T) {
	generator := new(mocks.MockTextGenerator)
	generator.On("GenerateContent", mock.Anything, "gemini-2.0-flash", "ping").Return("pong", nil)

	node := testutil.CreateTestNode(models.NodeTypeGemini, models.AIConfig{Prompt: "ping"})
	ec := testutil.CreateTestContext(nil, nil)

	handler := ai.NewAINode(models.NodeTypeGemini, generator, log.Discard()).WithDefaultModel("gemini-2.0-flash")
	_, err := handler.Execute(context.Background(), node, ec)

	require.NoError(t, err)
	assert.Equal(t, "pong", ec.Variables["aiResult"])
	generator.AssertExpectations(t)
}

func TestAINode_MissingAPIKeyIsAWarning(t *testing.T) {
	generator := new(mocks.MockTextGenerator)
	generator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return("", protocol.ErrMissingAPIKey)

	node := testutil.CreateTestNode(models.NodeTypeGemini, models.AIConfig{Prompt: "hi"})
	ec := testutil.CreateTestContext(nil, nil)

	outcome, err := ai.NewAINode(models.NodeTypeGemini, generator, log.Discard()).Execute(context.Background(), node, ec)

	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(), outcome)
	assert.Empty(t, ec.Failures())
	require.Len(t, ec.Logs(), 1)
	assert.False(t, strings.Contains(ec.Logs()[0], "Error") || strings.Contains(ec.Logs()[0], "Failed"))
}

func TestAINode_GenerationFailureIsSoft(t *testing.T) {
	generator := new(mocks.MockTextGenerator)
	generator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("quota exceeded"))

	node := testutil.CreateTestNode(models.NodeTypeGemini, models.AIConfig{Prompt: "hi"})
	ec := testutil.CreateTestContext(nil, nil)

	outcome, err := ai.NewAINode(models.NodeTypeGemini, generator, log.Discard()).Execute(context.Background(), node, ec)

	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(), outcome)
	require.Len(t, ec.Failures(), 1)
	assert.Contains(t, ec.Failures()[0].Error, "quota exceeded")
	assert.NotContains(t, ec.Variables, "aiResult")
}
