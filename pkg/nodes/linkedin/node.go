// Package linkedin provides the LinkedIn profile search and direct message nodes.
// Failures in either node abort the run.
package linkedin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/template"
)

const (
	MaxResults      = 10
	ResultsVariable = "linkedinResults"
	StatusVariable  = "lastMessageStatus"
)

var (
	ErrMissingSessionCookie = errors.New("linkedin session cookie not configured")
	ErrMissingProfileURL    = errors.New("linkedin profile url not available")
)

type ScraperNode struct {
	scraper protocol.LinkedInScraper
}

func NewScraperNode(scraper protocol.LinkedInScraper) *ScraperNode {
	return &ScraperNode{scraper: scraper}
}

func (n *ScraperNode) Type() models.NodeType { return models.NodeTypeLinkedInScraper }

func (n *ScraperNode) Execute(ctx context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.LinkedInScraperConfig)

	req := protocol.ScrapeRequest{
		Keywords: splitKeywords(template.Interpolate(config.Keywords, ec)),
		Location: strings.TrimSpace(template.Interpolate(config.Location, ec)),
		Limit:    MaxResults,
	}

	ec.Logf("🔎 Searching LinkedIn for %s in %q", strings.Join(req.Keywords, ", "), req.Location)

	profiles, err := n.scraper.SearchProfiles(ctx, req, ec.UserID)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("linkedin search failed: %w", err)
	}

	if len(profiles) > MaxResults {
		profiles = profiles[:MaxResults]
	}

	results := make([]any, 0, len(profiles))
	for _, profile := range profiles {
		results = append(results, profile)
	}

	ec.SetVariable(ResultsVariable, results)
	ec.Logf("🔎 Found %d LinkedIn profile(s)", len(results))

	return protocol.Continue(), nil
}

func splitKeywords(raw string) []string {
	var keywords []string

	for _, keyword := range strings.Split(raw, ",") {
		if keyword = strings.TrimSpace(keyword); keyword != "" {
			keywords = append(keywords, keyword)
		}
	}

	return keywords
}

type MessageNode struct {
	users     persistence.UserRepository
	messenger protocol.LinkedInMessenger
}

func NewMessageNode(users persistence.UserRepository, messenger protocol.LinkedInMessenger) *MessageNode {
	return &MessageNode{users: users, messenger: messenger}
}

func (n *MessageNode) Type() models.NodeType { return models.NodeTypeLinkedInMessage }

func (n *MessageNode) Execute(ctx context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.LinkedInMessageConfig)

	user, err := n.users.GetByID(ctx, ec.UserID)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("failed to load user: %w", err)
	}

	if user.LinkedInCookie == "" {
		return protocol.Outcome{}, ErrMissingSessionCookie
	}

	profileURL := strings.TrimSpace(template.Interpolate(config.ProfileURL, ec))
	if profileURL == "" {
		profileURL = template.Stringify(ec.BusinessData["linkedinUrl"])
	}

	if profileURL == "" {
		return protocol.Outcome{}, ErrMissingProfileURL
	}

	status, err := n.messenger.SendMessage(ctx, protocol.LinkedInMessage{
		SessionCookie: user.LinkedInCookie,
		ProfileURL:    profileURL,
		Message:       template.Interpolate(config.Message, ec),
	})
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("linkedin message failed: %w", err)
	}

	ec.SetVariable(StatusVariable, status)
	ec.Logf("💬 LinkedIn message to %s: %s", profileURL, status)

	return protocol.Continue(), nil
}
