// Package gemini calls the Google Generative Language API.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dukex/leadflow/pkg/clients"
	"github.com/dukex/leadflow/pkg/protocol"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-1.5-flash"
)

var ErrEmptyResponse = errors.New("gemini returned no candidates")

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if httpClient == nil {
		httpClient = clients.NewHTTPClient()
	}

	return &Client{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateContent implements protocol.TextGenerator.
func (c *Client) GenerateContent(ctx context.Context, model, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", protocol.ErrMissingAPIKey
	}

	if model == "" {
		model = DefaultModel
	}

	endpoint := c.baseURL + "/v1beta/models/" + url.PathEscape(model) + ":generateContent?key=" + url.QueryEscape(c.apiKey)

	var resp generateResponse

	err := clients.DoJSON(ctx, c.http, http.MethodPost, endpoint, nil,
		generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}}, &resp)
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}

	return b.String(), nil
}
