// Package whatsapp provides the node that sends a WhatsApp Business template to the lead.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/template"
)

const DefaultLanguage = "en_US"

var ErrMissingPhone = errors.New("business has no phone number")

type WhatsAppNode struct {
	sender protocol.WhatsAppSender
}

func NewWhatsAppNode(sender protocol.WhatsAppSender) *WhatsAppNode {
	return &WhatsAppNode{sender: sender}
}

func (n *WhatsAppNode) Type() models.NodeType { return models.NodeTypeWhatsApp }

// Execute aborts the run when the lead cannot be reached or the send fails.
func (n *WhatsAppNode) Execute(ctx context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.WhatsAppConfig)

	phone := strings.TrimSpace(template.Stringify(ec.BusinessData["phone"]))
	if phone == "" {
		return protocol.Outcome{}, ErrMissingPhone
	}

	language := config.TemplateLanguage
	if language == "" {
		language = DefaultLanguage
	}

	msg := protocol.WhatsAppTemplate{
		To:         phone,
		Name:       config.TemplateName,
		Language:   language,
		Parameters: Parameters(config.Variables, ec),
	}

	err := n.sender.SendTemplate(ctx, msg)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("whatsapp send failed: %w", err)
	}

	ec.Logf("📱 WhatsApp template %s sent to %s", msg.Name, phone)

	return protocol.Continue(), nil
}

// Parameters resolves template variables positionally. Entries with braces are interpolated,
// bare entries are treated as reference paths.
func Parameters(variables []string, ec *models.ExecutionContext) []string {
	params := make([]string, 0, len(variables))

	for _, variable := range variables {
		if strings.Contains(variable, "{") {
			params = append(params, template.Interpolate(variable, ec))

			continue
		}

		value, _ := template.Resolve(variable, ec)
		params = append(params, template.Stringify(value))
	}

	return params
}
