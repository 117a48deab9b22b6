// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/leadflow/pkg/clients"
	"github.com/dukex/leadflow/pkg/clients/gemini"
	"github.com/dukex/leadflow/pkg/clients/gmail"
	"github.com/dukex/leadflow/pkg/clients/scraper"
	"github.com/dukex/leadflow/pkg/clients/whatsapp"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/registry"
)

// ClientConfig holds the credentials of the external services used by nodes and workers.
type ClientConfig struct {
	GeminiAPIKey          string
	GeminiModel           string
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	ScraperURL            string
	ScraperAPIKey         string
}

// Clients are the external collaborators built from a ClientConfig. Optional services that
// are not configured are nil.
type Clients struct {
	Email    *gmail.Client
	Gemini   *gemini.Client
	WhatsApp *whatsapp.Client
	Scraper  *scraper.Client
}

func NewClients(config ClientConfig) Clients {
	httpClient := clients.NewHTTPClient()

	c := Clients{
		Email:  gmail.NewClient("", httpClient),
		Gemini: gemini.NewClient(config.GeminiAPIKey, "", httpClient),
	}

	if config.WhatsAppToken != "" && config.WhatsAppPhoneNumberID != "" {
		c.WhatsApp = whatsapp.NewClient(whatsapp.Config{
			PhoneNumberID: config.WhatsAppPhoneNumberID,
			AccessToken:   config.WhatsAppToken,
		}, httpClient)
	}

	if config.ScraperURL != "" {
		c.Scraper = scraper.NewClient(config.ScraperURL, config.ScraperAPIKey, httpClient)
	}

	return c
}

// WhatsAppSender returns the WhatsApp client as an interface, nil when not configured.
//
// nolint:ireturn // nil interface signals an unconfigured sender
func (c Clients) WhatsAppSender() protocol.WhatsAppSender {
	if c.WhatsApp == nil {
		return nil
	}

	return c.WhatsApp
}

// NewRegistry registers a handler for every node type backed by store and clients.
func NewRegistry(logger *slog.Logger, store persistence.Persistence, c Clients, config ClientConfig) *registry.Registry {
	reg := registry.NewRegistry(logger)

	deps := registry.Dependencies{
		Persistence:   store,
		EmailSender:   c.Email,
		TextGenerator: c.Gemini,
		HTTPClient:    clients.NewHTTPClient(),
		DefaultModel:  config.GeminiModel,
	}

	deps.WhatsAppSender = c.WhatsAppSender()
	if deps.WhatsAppSender == nil {
		deps.WhatsAppSender = clients.Unconfigured{Service: "whatsapp"}
	}

	if c.Scraper != nil {
		deps.LinkedInScraper = c.Scraper
		deps.LinkedInMessenger = c.Scraper
	} else {
		unconfigured := clients.Unconfigured{Service: "scraper"}
		deps.LinkedInScraper = unconfigured
		deps.LinkedInMessenger = unconfigured
	}

	reg.RegisterDefaultNodes(deps)

	return reg
}
