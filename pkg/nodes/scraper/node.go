// Package scraper provides the node that fetches pages and turns HTML into usable text.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/template"
)

const (
	DefaultOutputVariable = "scrapedData"
	SummaryLength         = 200

	maxPageBytes = 5 << 20
	userAgent    = "Mozilla/5.0 (compatible; LeadflowBot/1.0)"
)

var emailPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)

type ScraperNode struct {
	client protocol.HTTPDoer
}

// NewScraperNode fetches pages through client, http.DefaultClient when nil.
func NewScraperNode(client protocol.HTTPDoer) *ScraperNode {
	if client == nil {
		client = http.DefaultClient
	}

	return &ScraperNode{client: client}
}

func (n *ScraperNode) Type() models.NodeType { return models.NodeTypeScraper }

func (n *ScraperNode) Execute(ctx context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.ScraperConfig)

	output := config.OutputVariable
	if output == "" {
		output = DefaultOutputVariable
	}

	source := config.Input
	if strings.TrimSpace(source) == "" {
		source = config.URL
	}

	input := strings.TrimSpace(template.Interpolate(source, ec))
	if input == "" {
		ec.SetVariable(output, nil)
		ec.Logf("⚠️ Scraper %s has no input, nothing to do", node.DisplayName())

		return protocol.Continue(), nil
	}

	result, err := n.run(ctx, config.Action, input)
	if err != nil {
		ec.Fail(node, err)

		return protocol.Continue(), nil
	}

	ec.SetVariable(output, result)
	ec.Logf("🕷️ Scraper %s stored into variables.%s", config.Action, output)

	return protocol.Continue(), nil
}

func (n *ScraperNode) run(ctx context.Context, action, input string) (any, error) {
	switch action {
	case models.ScraperFetchURL:
		return n.fetch(ctx, input)
	case models.ScraperExtractEmails:
		return ExtractEmails(input), nil
	case models.ScraperCleanHTML:
		return CleanHTML(input)
	case models.ScraperMarkdown:
		return Markdown(input)
	case models.ScraperSummarize:
		return Summarize(input, SummaryLength), nil
	default:
		return nil, fmt.Errorf("unknown scraper action %q", action)
	}
}

func (n *ScraperNode) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", url, err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}

	return string(body), nil
}

// ExtractEmails returns the distinct addresses in text in order of first appearance.
func ExtractEmails(text string) []string {
	matches := emailPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	emails := make([]string, 0, len(matches))

	for _, match := range matches {
		if _, ok := seen[match]; ok {
			continue
		}

		seen[match] = struct{}{}
		emails = append(emails, match)
	}

	return emails
}

// Summarize truncates text to limit runes, marking the cut with "...".
func Summarize(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}

	return string(runes[:limit]) + "..."
}
