// Package scraper is the client of the remote scraping service that searches business listings
// and automates LinkedIn.
package scraper

import (
	"context"
	"net/http"
	"strings"

	"github.com/dukex/leadflow/pkg/clients"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = clients.NewHTTPClient()
	}

	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: httpClient}
}

type scrapeRequest struct {
	protocol.ScrapeRequest

	UserID string `json:"userId"`
}

// Scrape implements protocol.Scraper.
func (c *Client) Scrape(ctx context.Context, req protocol.ScrapeRequest, userID string) ([]models.Business, error) {
	var resp struct {
		Businesses []models.Business `json:"businesses"`
	}

	err := clients.DoJSON(ctx, c.http, http.MethodPost, c.baseURL+"/scrape", c.header(), scrapeRequest{req, userID}, &resp)
	if err != nil {
		return nil, err
	}

	for i := range resp.Businesses {
		resp.Businesses[i].UserID = userID
	}

	return resp.Businesses, nil
}

// SearchProfiles implements protocol.LinkedInScraper.
func (c *Client) SearchProfiles(ctx context.Context, req protocol.ScrapeRequest, userID string) ([]map[string]any, error) {
	var resp struct {
		Profiles []map[string]any `json:"profiles"`
	}

	err := clients.DoJSON(ctx, c.http, http.MethodPost, c.baseURL+"/linkedin/search", c.header(), scrapeRequest{req, userID}, &resp)
	if err != nil {
		return nil, err
	}

	return resp.Profiles, nil
}

type messageRequest struct {
	SessionCookie string `json:"sessionCookie"`
	ProfileURL    string `json:"profileUrl"`
	Message       string `json:"message"`
}

// SendMessage implements protocol.LinkedInMessenger.
func (c *Client) SendMessage(ctx context.Context, msg protocol.LinkedInMessage) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}

	err := clients.DoJSON(ctx, c.http, http.MethodPost, c.baseURL+"/linkedin/message", c.header(),
		messageRequest{SessionCookie: msg.SessionCookie, ProfileURL: msg.ProfileURL, Message: msg.Message}, &resp)
	if err != nil {
		return "", err
	}

	if resp.Status == "" {
		resp.Status = "sent"
	}

	return resp.Status, nil
}

func (c *Client) header() http.Header {
	if c.apiKey == "" {
		return nil
	}

	return http.Header{"X-Api-Key": {c.apiKey}}
}
