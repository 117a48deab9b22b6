package email_test

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/mocks"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes/email"
	"github.com/dukex/leadflow/pkg/persistence/memory"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *memory.Persistence
	sender   *mocks.MockEmailSender
	handler  *email.TemplateNode
	business *models.Business
}

func setup(t *testing.T, overrides ...func(*models.Business)) *fixture {
	t.Helper()

	store := memory.NewPersistence()
	store.PutUser(models.User{ID: "user-1", AccessToken: "oauth-token"})
	store.PutTemplate(models.EmailTemplate{
		ID: "T1", UserID: "user-1", Subject: "Hello {business.name}", Body: "We love {business.category} places",
	})

	business := testutil.CreateTestBusiness(overrides...)
	require.NoError(t, store.BusinessRepository().Insert(context.Background(), business))

	sender := new(mocks.MockEmailSender)
	handler := email.NewTemplateNode(store, sender, log.Discard())
	handler.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, email.MaxSendRetries)
	}

	return &fixture{store: store, sender: sender, handler: handler, business: business}
}

func (f *fixture) run(t *testing.T, config models.TemplateConfig) (protocol.Outcome, *models.ExecutionContext, error) {
	t.Helper()

	ec := testutil.CreateTestContext(f.business, nil)
	outcome, err := f.handler.Execute(context.Background(), testutil.CreateTestNode(models.NodeTypeTemplate, config), ec)

	return outcome, ec, err
}

func TestTemplateNode_SendsInterpolatedEmail(t *testing.T) {
	f := setup(t)
	f.sender.On("SendEmail", mock.Anything, protocol.EmailMessage{
		To:          "joe@diner.test",
		Subject:     "Hello Joe's Diner",
		Body:        "We love Restaurant places",
		AccessToken: "oauth-token",
	}).Return(nil).Once()

	outcome, ec, err := f.run(t, models.TemplateConfig{TemplateID: "T1"})

	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(), outcome)
	assert.Empty(t, ec.Failures())

	logs := f.store.EmailLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.EmailStatusSent, logs[0].Status)
	assert.NotNil(t, logs[0].SentAt)

	business, err := f.store.BusinessRepository().GetByID(context.Background(), f.business.ID)
	require.NoError(t, err)
	assert.True(t, business.EmailSent)
	assert.Equal(t, models.EmailStatusSent, business.EmailStatus)
	f.sender.AssertExpectations(t)
}

func TestTemplateNode_DuplicateIsSkipped(t *testing.T) {
	f := setup(t)
	f.sender.On("SendEmail", mock.Anything, mock.Anything).Return(nil).Once()

	_, _, err := f.run(t, models.TemplateConfig{TemplateID: "T1"})
	require.NoError(t, err)

	outcome, ec, err := f.run(t, models.TemplateConfig{TemplateID: "T1"})

	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(), outcome)
	assert.Empty(t, ec.Failures())
	assert.Contains(t, ec.Logs()[0], "already sent")
	assert.Len(t, f.store.EmailLogs(), 1)
	f.sender.AssertNumberOfCalls(t, "SendEmail", 1)
}

func TestTemplateNode_CooldownCountsAnyTemplate(t *testing.T) {
	f := setup(t)

	sentAt := time.Now().Add(-24 * time.Hour)
	require.NoError(t, f.store.EmailLogRepository().Insert(context.Background(), &models.EmailLog{
		UserID: "user-1", BusinessID: f.business.ID, TemplateID: "other", Status: models.EmailStatusSent, SentAt: &sentAt,
	}))

	outcome, ec, err := f.run(t, models.TemplateConfig{TemplateID: "T1", CooldownDays: 3})

	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(), outcome)
	assert.Contains(t, ec.Logs()[0], "last 3 day(s)")
	f.sender.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestTemplateNode_DuplicateCheckCanBeDisabled(t *testing.T) {
	f := setup(t)
	f.sender.On("SendEmail", mock.Anything, mock.Anything).Return(nil)

	allow := false
	for range 2 {
		_, _, err := f.run(t, models.TemplateConfig{TemplateID: "T1", PreventDuplicates: &allow})
		require.NoError(t, err)
	}

	f.sender.AssertNumberOfCalls(t, "SendEmail", 2)
}

func TestTemplateNode_RetriesTransientFailures(t *testing.T) {
	f := setup(t)
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	f.sender.On("SendEmail", mock.Anything, mock.Anything).Return(refused).Twice()
	f.sender.On("SendEmail", mock.Anything, mock.Anything).Return(nil).Once()

	outcome, ec, err := f.run(t, models.TemplateConfig{TemplateID: "T1"})

	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(), outcome)
	assert.Empty(t, ec.Failures())
	f.sender.AssertNumberOfCalls(t, "SendEmail", 3)
}

func TestTemplateNode_ExhaustedRetriesRouteToErrorHandle(t *testing.T) {
	f := setup(t)
	f.sender.On("SendEmail", mock.Anything, mock.Anything).Return(&net.OpError{Op: "dial", Err: syscall.ETIMEDOUT})

	outcome, ec, err := f.run(t, models.TemplateConfig{TemplateID: "T1"})

	require.NoError(t, err)
	assert.Equal(t, protocol.Route(models.HandleError), outcome)
	require.Len(t, ec.Failures(), 1)
	f.sender.AssertNumberOfCalls(t, "SendEmail", 1+email.MaxSendRetries)
}

func TestTemplateNode_PermanentFailureMarksRowsFailed(t *testing.T) {
	f := setup(t)
	f.sender.On("SendEmail", mock.Anything, mock.Anything).Return(errors.New("invalid_grant"))

	outcome, ec, err := f.run(t, models.TemplateConfig{TemplateID: "T1"})

	require.NoError(t, err)
	assert.Equal(t, protocol.Route(models.HandleError), outcome)
	require.Len(t, ec.Failures(), 1)
	assert.Contains(t, ec.Failures()[0].Error, "invalid_grant")
	f.sender.AssertNumberOfCalls(t, "SendEmail", 1)

	logs := f.store.EmailLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.EmailStatusFailed, logs[0].Status)
	assert.Equal(t, "invalid_grant", logs[0].Error)

	business, err := f.store.BusinessRepository().GetByID(context.Background(), f.business.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusFailed, business.EmailStatus)
	assert.False(t, business.EmailSent)
}

func TestTemplateNode_MissingRecipientRoutesToErrorHandle(t *testing.T) {
	f := setup(t, func(b *models.Business) { b.Email = "" })

	outcome, ec, err := f.run(t, models.TemplateConfig{TemplateID: "T1"})

	require.NoError(t, err)
	assert.Equal(t, protocol.Route(models.HandleError), outcome)
	require.Len(t, ec.Failures(), 1)
	assert.Equal(t, email.ErrMissingRecipient.Error(), ec.Failures()[0].Error)
}

func TestTemplateNode_UnknownTemplateAborts(t *testing.T) {
	f := setup(t)

	_, _, err := f.run(t, models.TemplateConfig{TemplateID: "nope"})

	require.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, email.IsTransient(syscall.ECONNREFUSED))
	assert.True(t, email.IsTransient(&net.OpError{Err: syscall.EHOSTUNREACH}))
	assert.False(t, email.IsTransient(errors.New("invalid_grant")))
	assert.False(t, email.IsTransient(nil))
}
