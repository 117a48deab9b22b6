// Package gmail sends outreach email through the Gmail REST API with the user's OAuth token.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/dukex/leadflow/pkg/clients"
	"github.com/dukex/leadflow/pkg/protocol"
)

const DefaultBaseURL = "https://gmail.googleapis.com"

var ErrMissingToken = errors.New("gmail access token is required")

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient talks to baseURL, DefaultBaseURL when empty.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if httpClient == nil {
		httpClient = clients.NewHTTPClient()
	}

	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type sendRequest struct {
	Raw string `json:"raw"`
}

// SendEmail implements protocol.EmailSender.
func (c *Client) SendEmail(ctx context.Context, msg protocol.EmailMessage) error {
	if msg.AccessToken == "" {
		return ErrMissingToken
	}

	raw := base64.URLEncoding.EncodeToString([]byte(Compose(msg)))

	return clients.DoJSON(ctx, c.http, http.MethodPost, c.baseURL+"/gmail/v1/users/me/messages/send",
		clients.Bearer(msg.AccessToken), sendRequest{Raw: raw}, nil)
}

// Compose renders msg as an RFC 822 message. Bodies containing markup are sent as HTML.
func Compose(msg protocol.EmailMessage) string {
	contentType := "text/plain"
	if strings.Contains(msg.Body, "<") && strings.Contains(msg.Body, ">") {
		contentType = "text/html"
	}

	var b strings.Builder

	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: " + contentType + "; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return b.String()
}
