// Package ai provides the gemini and agent nodes that call a generative text model.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/template"
)

const (
	DefaultModel          = "gemini-1.5-flash"
	DefaultOutputVariable = "aiResult"
)

// AINode interpolates the prompt and stores the generated text in a variable.
// Generation failures are soft: the run continues without the variable.
type AINode struct {
	nodeType     models.NodeType
	generator    protocol.TextGenerator
	defaultModel string
	logger       *slog.Logger
}

func NewAINode(nodeType models.NodeType, generator protocol.TextGenerator, logger *slog.Logger) *AINode {
	return &AINode{
		nodeType:     nodeType,
		generator:    generator,
		defaultModel: DefaultModel,
		logger:       logger.With("module", "ai_node", "node_type", string(nodeType)),
	}
}

// WithDefaultModel sets the model used by nodes that do not name one. Empty keeps DefaultModel.
func (n *AINode) WithDefaultModel(model string) *AINode {
	if model != "" {
		n.defaultModel = model
	}

	return n
}

func (n *AINode) Type() models.NodeType { return n.nodeType }

func (n *AINode) Execute(ctx context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.AIConfig)

	prompt := template.Interpolate(config.Prompt, ec)
	if config.Context != "" {
		prompt += "\n\nContext:\n" + template.Interpolate(config.Context, ec)
	}

	model := config.Model
	if model == "" {
		model = n.defaultModel
	}

	output := config.OutputVariable
	if output == "" {
		output = DefaultOutputVariable
	}

	if n.generator == nil {
		ec.Logf("⚠️ AI generation skipped for %s: %v", node.DisplayName(), protocol.ErrMissingAPIKey)

		return protocol.Continue(), nil
	}

	text, err := n.generator.GenerateContent(ctx, model, prompt)

	switch {
	case errors.Is(err, protocol.ErrMissingAPIKey):
		ec.Logf("⚠️ AI generation skipped for %s: %v", node.DisplayName(), err)
	case err != nil:
		n.logger.WarnContext(ctx, "text generation failed", "node_id", node.ID, "error", err)
		ec.Fail(node, fmt.Errorf("AI generation: %w", err))
	default:
		ec.SetVariable(output, text)
		ec.Logf("🤖 AI generated %d characters into variables.%s", len(text), output)
	}

	return protocol.Continue(), nil
}
