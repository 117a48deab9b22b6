package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/leadflow/pkg/protocol"
)

// ErrNotConfigured is returned by Unconfigured for every call.
var ErrNotConfigured = errors.New("service not configured")

// Unconfigured stands in for an optional service whose credentials were not provided,
// so nodes that need it fail with ErrNotConfigured.
type Unconfigured struct {
	Service string
}

func (u Unconfigured) err() error {
	return fmt.Errorf("%s: %w", u.Service, ErrNotConfigured)
}

func (u Unconfigured) SendTemplate(context.Context, protocol.WhatsAppTemplate) error {
	return u.err()
}

func (u Unconfigured) SendText(context.Context, string, string) error {
	return u.err()
}

func (u Unconfigured) SearchProfiles(context.Context, protocol.ScrapeRequest, string) ([]map[string]any, error) {
	return nil, u.err()
}

func (u Unconfigured) SendMessage(context.Context, protocol.LinkedInMessage) (string, error) {
	return "", u.err()
}
