// Package email provides the template node that sends an outreach email to the lead.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/template"
)

var (
	ErrMissingRecipient   = errors.New("business has no email address")
	ErrMissingAccessToken = errors.New("user has no connected mailbox")
	ErrMissingBusiness    = errors.New("no business in execution context")
)

// TemplateNode sends the configured email template unless the lead was already contacted.
// A failed send routes to the "error" handle.
type TemplateNode struct {
	templates  persistence.TemplateRepository
	users      persistence.UserRepository
	emailLogs  persistence.EmailLogRepository
	businesses persistence.BusinessRepository
	sender     protocol.EmailSender
	logger     *slog.Logger

	Now        func() time.Time
	NewBackOff func() backoff.BackOff
}

func NewTemplateNode(store persistence.Persistence, sender protocol.EmailSender, logger *slog.Logger) *TemplateNode {
	return &TemplateNode{
		templates:  store.TemplateRepository(),
		users:      store.UserRepository(),
		emailLogs:  store.EmailLogRepository(),
		businesses: store.BusinessRepository(),
		sender:     sender,
		logger:     logger.With("module", "template_node"),
		Now:        time.Now,
		NewBackOff: DefaultBackOff,
	}
}

func (n *TemplateNode) Type() models.NodeType { return models.NodeTypeTemplate }

func (n *TemplateNode) Execute(ctx context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.TemplateConfig)

	tmpl, err := n.templates.GetByID(ctx, config.TemplateID)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("failed to load email template: %w", err)
	}

	if ec.BusinessID == "" {
		return n.failed(node, ec, ErrMissingBusiness), nil
	}

	skip, err := n.suppressed(ctx, config, ec)
	if err != nil {
		return protocol.Outcome{}, err
	}

	if skip {
		return protocol.Continue(), nil
	}

	user, err := n.users.GetByID(ctx, ec.UserID)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("failed to load user: %w", err)
	}

	to := strings.TrimSpace(template.Stringify(ec.BusinessData["email"]))
	if to == "" {
		return n.failed(node, ec, ErrMissingRecipient), nil
	}

	if user.AccessToken == "" {
		return n.failed(node, ec, ErrMissingAccessToken), nil
	}

	msg := protocol.EmailMessage{
		To:          to,
		Subject:     template.Interpolate(tmpl.Subject, ec),
		Body:        template.Interpolate(tmpl.Body, ec),
		AccessToken: user.AccessToken,
	}

	entry := &models.EmailLog{
		UserID:     ec.UserID,
		BusinessID: ec.BusinessID,
		TemplateID: tmpl.ID,
		Subject:    msg.Subject,
		Body:       msg.Body,
		Status:     models.EmailStatusQueued,
	}

	err = n.emailLogs.Insert(ctx, entry)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("failed to record email: %w", err)
	}

	sendErr := SendWithRetry(ctx, n.sender, msg, n.NewBackOff())
	if sendErr != nil {
		n.record(ctx, entry.ID, ec.BusinessID, models.EmailStatusFailed, sendErr.Error(), nil)

		return n.failed(node, ec, fmt.Errorf("send to %s: %w", to, sendErr)), nil
	}

	sentAt := n.Now().UTC()
	n.record(ctx, entry.ID, ec.BusinessID, models.EmailStatusSent, "", &sentAt)
	ec.Logf("📧 Email %q sent to %s", msg.Subject, to)

	return protocol.Continue(), nil
}

// suppressed applies the duplicate check and then the cooldown check.
func (n *TemplateNode) suppressed(ctx context.Context, config models.TemplateConfig, ec *models.ExecutionContext) (bool, error) {
	if config.DuplicatesPrevented() {
		sent, err := n.emailLogs.HasSent(ctx, ec.BusinessID, config.TemplateID)
		if err != nil {
			return false, fmt.Errorf("failed to check previous emails: %w", err)
		}

		if sent {
			ec.Logf("⏭️ Template already sent to this business, skipping")

			return true, nil
		}
	}

	if config.CooldownDays > 0 {
		window := time.Duration(float64(config.CooldownDays) * float64(24*time.Hour))

		recent, err := n.emailLogs.SentSince(ctx, ec.BusinessID, n.Now().Add(-window))
		if err != nil {
			return false, fmt.Errorf("failed to check cooldown: %w", err)
		}

		if recent {
			ec.Logf("⏭️ Business was emailed in the last %v day(s), skipping", float64(config.CooldownDays))

			return true, nil
		}
	}

	return false, nil
}

func (n *TemplateNode) record(ctx context.Context, logID, businessID, status, errMessage string, sentAt *time.Time) {
	err := n.emailLogs.UpdateStatus(ctx, logID, status, errMessage, sentAt)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to update email log", "email_log_id", logID, "error", err)
	}

	err = n.businesses.UpdateEmailStatus(ctx, businessID, status, sentAt)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to update business email status", "business_id", businessID, "error", err)
	}
}

func (n *TemplateNode) failed(node models.Node, ec *models.ExecutionContext, err error) protocol.Outcome {
	ec.Fail(node, err)

	return protocol.Route(models.HandleError)
}
