package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence/memory"
	"github.com/dukex/leadflow/pkg/queue"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/dukex/leadflow/pkg/web"
	"github.com/dukex/leadflow/pkg/workers"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	app      *fiber.App
	store    *memory.Persistence
	broker   *queue.MemoryBroker
	feed     *web.ExecutionFeed
	business *models.Business
}

func setupTestApp(t *testing.T) *testAPI {
	t.Helper()

	logger := log.Discard()
	store := memory.NewPersistence()
	broker := queue.NewMemoryBroker()
	dispatcher := workers.NewDispatcher(broker, store, logger)

	feed := web.NewExecutionFeed(10)
	handlers := web.NewAPIHandlers(store, dispatcher, validator.New(validator.WithRequiredStructEnabled()), logger).
		WithExecutionFeed(feed)

	app := fiber.New()
	handlers.RegisterRoutes(app)

	business := testutil.CreateTestBusiness()
	require.NoError(t, store.BusinessRepository().Insert(context.Background(), business))

	wf := &models.Workflow{
		ID:       "wf-1",
		UserID:   "user-1",
		Name:     "Outreach",
		IsActive: true,
		Graph: models.WorkflowGraph{Nodes: []models.Node{
			testutil.CreateTestNode(models.NodeTypeStart, models.StartConfig{}, testutil.WithID("start")),
		}},
	}
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), wf))

	return &testAPI{app: app, store: store, broker: broker, feed: feed, business: business}
}

func (a *testAPI) do(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, raw
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestAPIHandlers_QueueExecutions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		workflowID     string
		body           any
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "missing business ids",
			workflowID:     "wf-1",
			body:           web.QueueExecutionsRequest{},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "BusinessIDs",
		},
		{
			name:           "invalid json",
			workflowID:     "wf-1",
			body:           "{",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid JSON format",
		},
		{
			name:           "unknown workflow",
			workflowID:     "missing",
			body:           web.QueueExecutionsRequest{BusinessIDs: []string{"b"}},
			expectedStatus: http.StatusNotFound,
			expectedError:  "workflow_not_found",
		},
		{
			name:           "unknown business",
			workflowID:     "wf-1",
			body:           web.QueueExecutionsRequest{BusinessIDs: []string{"missing"}},
			expectedStatus: http.StatusNotFound,
			expectedError:  "business_not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := setupTestApp(t)

			status, body := api.do(t, http.MethodPost, "/workflows/"+tt.workflowID+"/executions", tt.body)

			assert.Equal(t, tt.expectedStatus, status)
			assert.Contains(t, string(body), tt.expectedError)
			assert.Equal(t, 0, api.broker.Pending(models.QueueWorkflow))
		})
	}
}

func TestAPIHandlers_QueueExecutions_Success(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodPost, "/workflows/wf-1/executions",
		web.QueueExecutionsRequest{BusinessIDs: []string{api.business.ID}})
	require.Equal(t, http.StatusAccepted, status, string(body))

	var response web.QueueExecutionsResponse
	require.NoError(t, json.Unmarshal(body, &response))
	require.Len(t, response.ExecutionIDs, 1)
	assert.Equal(t, "wf-1", response.WorkflowID)
	assert.Equal(t, 1, api.broker.Pending(models.QueueWorkflow))

	status, body = api.do(t, http.MethodGet, "/executions/"+response.ExecutionIDs[0], nil)
	require.Equal(t, http.StatusOK, status)

	var execution models.ExecutionLog
	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, models.ExecutionStatusPending, execution.Status)
	assert.Equal(t, api.business.ID, execution.BusinessID)
}

func TestAPIHandlers_GetExecutionEvents(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodPost, "/workflows/wf-1/executions",
		web.QueueExecutionsRequest{BusinessIDs: []string{api.business.ID}})
	require.Equal(t, http.StatusAccepted, status, string(body))

	var queued web.QueueExecutionsResponse
	require.NoError(t, json.Unmarshal(body, &queued))

	executionID := queued.ExecutionIDs[0]
	started := &events.ExecutionStarted{
		BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, executionID, "wf-1", api.business.ID, "user-1"),
		Attempt:   1,
	}
	require.NoError(t, api.feed.Record(context.Background(), started))

	status, body = api.do(t, http.MethodGet, "/executions/"+executionID+"/events", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var response struct {
		ExecutionID string                 `json:"executionId"`
		Status      models.ExecutionStatus `json:"status"`
		Events      []struct {
			Type events.EventType `json:"type"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, executionID, response.ExecutionID)
	assert.Equal(t, models.ExecutionStatusPending, response.Status)
	require.Len(t, response.Events, 1)
	assert.Equal(t, events.ExecutionStartedEvent, response.Events[0].Type)

	status, _ = api.do(t, http.MethodGet, "/executions/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_QueueExecutions_InactiveWorkflow(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	ctx := context.Background()

	wf, err := api.store.WorkflowRepository().GetByID(ctx, "wf-1")
	require.NoError(t, err)

	wf.IsActive = false
	require.NoError(t, api.store.WorkflowRepository().Save(ctx, wf))

	status, body := api.do(t, http.MethodPost, "/workflows/wf-1/executions",
		web.QueueExecutionsRequest{BusinessIDs: []string{api.business.ID}})

	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "workflow_inactive")
}

func TestAPIHandlers_GetExecution_NotFound(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodGet, "/executions/missing", nil)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "execution_not_found")
}

func TestAPIHandlers_ValidateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "valid graph",
			body: `{"nodes":[{"id":"start","type":"start","data":{"label":"Start"}},` +
				`{"id":"wait","type":"delay","data":{"config":{"delayHours":24}}}],` +
				`"edges":[{"id":"e1","source":"start","target":"wait"}]}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `"valid":true`,
		},
		{
			name:           "schema violation",
			body:           `{"nodes":[{"id":"start","type":"teleport"}],"edges":[]}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "invalid workflow graph",
		},
		{
			name:           "no start node",
			body:           `{"nodes":[{"id":"a","type":"set"}],"edges":[]}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "no start node",
		},
		{
			name:           "dangling edge",
			body:           `{"nodes":[{"id":"start","type":"start"}],"edges":[{"id":"e1","source":"start","target":"ghost"}]}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "unknown target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := setupTestApp(t)

			status, body := api.do(t, http.MethodPost, "/workflows/validate", tt.body)

			assert.Equal(t, tt.expectedStatus, status)
			assert.Contains(t, string(body), tt.expectedBody)
		})
	}
}

func TestAPIHandlers_ScrapingJobs(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodPost, "/scraping-jobs", web.CreateScrapingJobRequest{
		UserID:   "user-1",
		Keywords: []string{" dentist ", ""},
		Location: "Lisbon",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var job models.ScrapingJob
	require.NoError(t, json.Unmarshal(body, &job))
	assert.Equal(t, []string{"dentist"}, job.Keywords)
	assert.Equal(t, models.ScrapingPending, job.Status)
	assert.Equal(t, 1, api.broker.Pending(models.QueueScraping))

	status, _ = api.do(t, http.MethodPatch, "/scraping-jobs/"+job.ID, web.UpdateScrapingJobRequest{Status: models.ScrapingPaused})
	require.Equal(t, http.StatusOK, status)

	stored, err := api.store.ScrapingJobRepository().GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapingPaused, stored.Status)

	status, _ = api.do(t, http.MethodPatch, "/scraping-jobs/"+job.ID, web.UpdateScrapingJobRequest{Status: models.ScrapingStopped})
	require.Equal(t, http.StatusOK, status)

	status, body = api.do(t, http.MethodPatch, "/scraping-jobs/"+job.ID, web.UpdateScrapingJobRequest{Status: models.ScrapingRunning})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "already finished")

	status, body = api.do(t, http.MethodGet, "/scraping-jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"stopped"`)
}

func TestAPIHandlers_UpdateScrapingJob_Validation(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodPatch, "/scraping-jobs/any", web.UpdateScrapingJobRequest{Status: models.ScrapingCompleted})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "Status")

	status, body = api.do(t, http.MethodPatch, "/scraping-jobs/missing", web.UpdateScrapingJobRequest{Status: models.ScrapingPaused})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "scraping_job_not_found")
}

func TestAPIHandlers_CreateScrapingJob_BlankKeywords(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodPost, "/scraping-jobs", web.CreateScrapingJobRequest{
		UserID:   "user-1",
		Keywords: []string{"  "},
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "at least one keyword")
	assert.Equal(t, 0, api.broker.Pending(models.QueueScraping))
}

func TestAPIHandlers_QueueEmail(t *testing.T) {
	t.Parallel()

	t.Run("template rendered against the business", func(t *testing.T) {
		t.Parallel()

		api := setupTestApp(t)
		api.store.PutTemplate(models.EmailTemplate{
			ID:      "tpl-1",
			UserID:  "user-1",
			Subject: "Hello {business.name}",
			Body:    "We love {category} places.",
		})

		status, body := api.do(t, http.MethodPost, "/emails", web.QueueEmailRequest{
			UserID:     "user-1",
			BusinessID: api.business.ID,
			TemplateID: "tpl-1",
		})
		require.Equal(t, http.StatusAccepted, status, string(body))

		var response web.QueueEmailResponse
		require.NoError(t, json.Unmarshal(body, &response))
		assert.NotEmpty(t, response.EmailLogID)
		assert.Equal(t, "Hello Joe's Diner", response.Subject)
		assert.Equal(t, api.business.Email, response.To)
		assert.Equal(t, 1, api.broker.Pending(models.QueueEmail))
	})

	t.Run("inline message", func(t *testing.T) {
		t.Parallel()

		api := setupTestApp(t)

		status, body := api.do(t, http.MethodPost, "/emails", web.QueueEmailRequest{
			UserID:     "user-1",
			BusinessID: api.business.ID,
			Subject:    "Quick question for {name}",
			Body:       "Hi",
		})
		require.Equal(t, http.StatusAccepted, status, string(body))
		assert.Contains(t, string(body), "Quick question for Joe's Diner")
	})

	t.Run("subject required without template", func(t *testing.T) {
		t.Parallel()

		api := setupTestApp(t)

		status, body := api.do(t, http.MethodPost, "/emails", web.QueueEmailRequest{
			UserID:     "user-1",
			BusinessID: api.business.ID,
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, string(body), "Subject")
	})

	t.Run("unknown template", func(t *testing.T) {
		t.Parallel()

		api := setupTestApp(t)

		status, body := api.do(t, http.MethodPost, "/emails", web.QueueEmailRequest{
			UserID:     "user-1",
			BusinessID: api.business.ID,
			TemplateID: "missing",
		})
		assert.Equal(t, http.StatusNotFound, status)
		assert.Contains(t, string(body), "template_not_found")
	})

	t.Run("business without email", func(t *testing.T) {
		t.Parallel()

		api := setupTestApp(t)

		silent := testutil.CreateTestBusiness(func(b *models.Business) {
			b.Name = "Quiet Bakery"
			b.Email = ""
		})
		require.NoError(t, api.store.BusinessRepository().Insert(context.Background(), silent))

		status, body := api.do(t, http.MethodPost, "/emails", web.QueueEmailRequest{
			UserID:     "user-1",
			BusinessID: silent.ID,
			Subject:    "s",
			Body:       "b",
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, string(body), "no email address")
		assert.Equal(t, 0, api.broker.Pending(models.QueueEmail))
	})
}
