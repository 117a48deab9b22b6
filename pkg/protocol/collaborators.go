package protocol

import (
	"context"
	"errors"
	"net/http"

	"github.com/dukex/leadflow/pkg/models"
)

// ErrMissingAPIKey is returned by a TextGenerator that has no credentials configured.
// Callers treat it as a soft skip.
var ErrMissingAPIKey = errors.New("api key not configured")

// EmailMessage is one outbound email sent on behalf of a user.
type EmailMessage struct {
	To          string
	Subject     string
	Body        string
	AccessToken string
}

// EmailSender delivers email through the user's connected mailbox.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// WhatsAppTemplate is a WhatsApp Business template message.
type WhatsAppTemplate struct {
	To         string
	Name       string
	Language   string
	Parameters []string
}

// WhatsAppSender delivers WhatsApp Business messages.
type WhatsAppSender interface {
	SendTemplate(ctx context.Context, msg WhatsAppTemplate) error
	SendText(ctx context.Context, to, body string) error
}

// TextGenerator is a generative text model.
type TextGenerator interface {
	GenerateContent(ctx context.Context, model, prompt string) (string, error)
}

// ScrapeRequest asks a scraper for one page of results.
type ScrapeRequest struct {
	Keywords []string `json:"keywords"`
	Location string   `json:"location"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
}

// Scraper finds businesses for keywords and a location.
type Scraper interface {
	Scrape(ctx context.Context, req ScrapeRequest, userID string) ([]models.Business, error)
}

// LinkedInScraper searches LinkedIn profiles through a search engine.
type LinkedInScraper interface {
	SearchProfiles(ctx context.Context, req ScrapeRequest, userID string) ([]map[string]any, error)
}

// LinkedInMessage is a direct message sent with the user's LinkedIn session.
type LinkedInMessage struct {
	SessionCookie string
	ProfileURL    string
	Message       string
}

// LinkedInMessenger sends LinkedIn messages.
type LinkedInMessenger interface {
	SendMessage(ctx context.Context, msg LinkedInMessage) (status string, err error)
}

// HTTPDoer is the subset of *http.Client used by nodes that call arbitrary URLs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
