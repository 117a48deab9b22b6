// Package whatsapp sends messages through the WhatsApp Business Cloud API.
package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dukex/leadflow/pkg/clients"
	"github.com/dukex/leadflow/pkg/protocol"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v19.0"
)

var ErrNotConfigured = errors.New("whatsapp phone number id or access token not configured")

type Config struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
}

type Client struct {
	config Config
	http   *http.Client
}

func NewClient(config Config, httpClient *http.Client) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}

	if httpClient == nil {
		httpClient = clients.NewHTTPClient()
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{config: config, http: httpClient}
}

type parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []parameter `json:"parameters"`
}

type templateBody struct {
	Name       string            `json:"name"`
	Language   map[string]string `json:"language"`
	Components []component       `json:"components,omitempty"`
}

type message struct {
	MessagingProduct string            `json:"messaging_product"`
	To               string            `json:"to"`
	Type             string            `json:"type"`
	Template         *templateBody     `json:"template,omitempty"`
	Text             map[string]string `json:"text,omitempty"`
}

// SendTemplate implements protocol.WhatsAppSender. Parameters fill the body component in order.
func (c *Client) SendTemplate(ctx context.Context, msg protocol.WhatsAppTemplate) error {
	body := &templateBody{Name: msg.Name, Language: map[string]string{"code": msg.Language}}

	if len(msg.Parameters) > 0 {
		params := make([]parameter, 0, len(msg.Parameters))
		for _, p := range msg.Parameters {
			params = append(params, parameter{Type: "text", Text: p})
		}

		body.Components = []component{{Type: "body", Parameters: params}}
	}

	return c.send(ctx, message{MessagingProduct: "whatsapp", To: normalizePhone(msg.To), Type: "template", Template: body})
}

// SendText implements protocol.WhatsAppSender.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, message{MessagingProduct: "whatsapp", To: normalizePhone(to), Type: "text", Text: map[string]string{"body": body}})
}

func (c *Client) send(ctx context.Context, msg message) error {
	if c.config.PhoneNumberID == "" || c.config.AccessToken == "" {
		return ErrNotConfigured
	}

	endpoint := c.config.BaseURL + "/" + c.config.APIVersion + "/" + c.config.PhoneNumberID + "/messages"

	return clients.DoJSON(ctx, c.http, http.MethodPost, endpoint, clients.Bearer(c.config.AccessToken), msg, nil)
}

// normalizePhone keeps digits only; the Cloud API expects the international number without "+".
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}

		return -1
	}, phone)
}
