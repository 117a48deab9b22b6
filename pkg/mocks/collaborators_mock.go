package mocks

import (
	"context"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockEmailSender is a mock implementation of protocol.EmailSender.
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendEmail(ctx context.Context, msg protocol.EmailMessage) error {
	args := m.Called(ctx, msg)

	return args.Error(0)
}

// MockWhatsAppSender is a mock implementation of protocol.WhatsAppSender.
type MockWhatsAppSender struct {
	mock.Mock
}

func (m *MockWhatsAppSender) SendTemplate(ctx context.Context, msg protocol.WhatsAppTemplate) error {
	args := m.Called(ctx, msg)

	return args.Error(0)
}

func (m *MockWhatsAppSender) SendText(ctx context.Context, to, body string) error {
	args := m.Called(ctx, to, body)

	return args.Error(0)
}

// MockTextGenerator is a mock implementation of protocol.TextGenerator.
type MockTextGenerator struct {
	mock.Mock
}

func (m *MockTextGenerator) GenerateContent(ctx context.Context, model, prompt string) (string, error) {
	args := m.Called(ctx, model, prompt)

	return args.String(0), args.Error(1)
}

// MockScraper is a mock implementation of protocol.Scraper.
type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) Scrape(ctx context.Context, req protocol.ScrapeRequest, userID string) ([]models.Business, error) {
	args := m.Called(ctx, req, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Business), args.Error(1)
}

// MockLinkedInScraper is a mock implementation of protocol.LinkedInScraper.
type MockLinkedInScraper struct {
	mock.Mock
}

func (m *MockLinkedInScraper) SearchProfiles(ctx context.Context, req protocol.ScrapeRequest, userID string) ([]map[string]any, error) {
	args := m.Called(ctx, req, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]map[string]any), args.Error(1)
}

// MockLinkedInMessenger is a mock implementation of protocol.LinkedInMessenger.
type MockLinkedInMessenger struct {
	mock.Mock
}

func (m *MockLinkedInMessenger) SendMessage(ctx context.Context, msg protocol.LinkedInMessage) (string, error) {
	args := m.Called(ctx, msg)

	return args.String(0), args.Error(1)
}
