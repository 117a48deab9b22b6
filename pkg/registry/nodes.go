package registry

import (
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes/absplit"
	"github.com/dukex/leadflow/pkg/nodes/ai"
	"github.com/dukex/leadflow/pkg/nodes/apirequest"
	"github.com/dukex/leadflow/pkg/nodes/condition"
	"github.com/dukex/leadflow/pkg/nodes/custom"
	"github.com/dukex/leadflow/pkg/nodes/database"
	"github.com/dukex/leadflow/pkg/nodes/delay"
	"github.com/dukex/leadflow/pkg/nodes/email"
	"github.com/dukex/leadflow/pkg/nodes/flow"
	"github.com/dukex/leadflow/pkg/nodes/linkedin"
	"github.com/dukex/leadflow/pkg/nodes/scraper"
	"github.com/dukex/leadflow/pkg/nodes/whatsapp"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/protocol"
)

// Dependencies are the collaborators the built-in node handlers call out to.
type Dependencies struct {
	Persistence       persistence.Persistence
	EmailSender       protocol.EmailSender
	WhatsAppSender    protocol.WhatsAppSender
	TextGenerator     protocol.TextGenerator
	LinkedInScraper   protocol.LinkedInScraper
	LinkedInMessenger protocol.LinkedInMessenger
	HTTPClient        protocol.HTTPDoer
	// DefaultModel is the generative model used by AI nodes without one; empty uses ai.DefaultModel.
	DefaultModel string
	// Rand overrides the A/B split draw; nil uses math/rand/v2.
	Rand func() float64
}

// RegisterDefaultNodes registers a handler for every node type.
func (r *Registry) RegisterDefaultNodes(deps Dependencies) {
	for _, nodeType := range flow.PassthroughTypes {
		r.RegisterNode(flow.NewPassthroughNode(nodeType))
	}

	r.RegisterNode(flow.NewSetNode())
	r.RegisterNode(flow.NewFilterNode())
	r.RegisterNode(condition.NewConditionNode())
	r.RegisterNode(absplit.NewABSplitNode(deps.Rand))
	r.RegisterNode(delay.NewDelayNode())
	r.RegisterNode(custom.NewCustomNode())

	r.RegisterNode(ai.NewAINode(models.NodeTypeGemini, deps.TextGenerator, r.logger).WithDefaultModel(deps.DefaultModel))
	r.RegisterNode(ai.NewAINode(models.NodeTypeAgent, deps.TextGenerator, r.logger).WithDefaultModel(deps.DefaultModel))
	r.RegisterNode(apirequest.NewAPIRequestNode(deps.HTTPClient))
	r.RegisterNode(scraper.NewScraperNode(deps.HTTPClient))
	r.RegisterNode(database.NewDatabaseNode(deps.Persistence.TableStore()))

	r.RegisterNode(linkedin.NewScraperNode(deps.LinkedInScraper))
	r.RegisterNode(linkedin.NewMessageNode(deps.Persistence.UserRepository(), deps.LinkedInMessenger))
	r.RegisterNode(whatsapp.NewWhatsAppNode(deps.WhatsAppSender))
	r.RegisterNode(email.NewTemplateNode(deps.Persistence, deps.EmailSender, r.logger))
}
