package apirequest_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes/apirequest"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIRequestNode_PostsInterpolatedJSON(t *testing.T) {
	var (
		gotBody        string
		gotContentType string
		gotAuth        string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"lead":{"id":42,"tags":["hot"]}}`))
	}))
	defer server.Close()

	node := testutil.CreateTestNode(models.NodeTypeAPIRequest, models.APIRequestConfig{
		URL:     server.URL + "/leads",
		Method:  "post",
		Headers: `{"Authorization": "Bearer {variables.token}"}`,
		Body:    `{"name": "{business.name}"}`,
		Extract: ".lead.id",
	})
	ec := testutil.CreateTestContext(testutil.CreateTestBusiness(), map[string]any{"token": "t0k"})

	outcome, err := apirequest.NewAPIRequestNode(server.Client()).Execute(context.Background(), node, ec)

	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(), outcome)
	assert.Empty(t, ec.Failures())
	assert.JSONEq(t, `{"name": "Joe's Diner"}`, gotBody)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Bearer t0k", gotAuth)
	assert.Equal(t, `{"lead":{"id":42,"tags":["hot"]}}`, ec.Variables[apirequest.ResponseVariable])
	assert.Equal(t, http.StatusCreated, ec.Variables[apirequest.StatusVariable])
	assert.Equal(t, 42.0, ec.Variables[apirequest.ResultVariable])
}

func TestAPIRequestNode_DefaultsToGetWithPlainText(t *testing.T) {
	var method string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	node := testutil.CreateTestNode(models.NodeTypeAPIRequest, models.APIRequestConfig{URL: server.URL})
	ec := testutil.CreateTestContext(nil, nil)

	_, err := apirequest.NewAPIRequestNode(server.Client()).Execute(context.Background(), node, ec)

	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, method)
	assert.Equal(t, "ok", ec.Variables[apirequest.ResponseVariable])
	assert.NotContains(t, ec.Variables, apirequest.ResultVariable)
}

func TestAPIRequestNode_ErrorStatusIsSoftFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	node := testutil.CreateTestNode(models.NodeTypeAPIRequest, models.APIRequestConfig{URL: server.URL})
	ec := testutil.CreateTestContext(nil, nil)

	outcome, err := apirequest.NewAPIRequestNode(server.Client()).Execute(context.Background(), node, ec)

	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(), outcome)
	require.Len(t, ec.Failures(), 1)
	assert.Contains(t, ec.Failures()[0].Error, "status 500")
	assert.Equal(t, "boom\n", ec.Variables[apirequest.ResponseVariable])
}

func TestAPIRequestNode_TransportFailureIsSoft(t *testing.T) {
	node := testutil.CreateTestNode(models.NodeTypeAPIRequest, models.APIRequestConfig{URL: "http://127.0.0.1:1/unreachable"})
	ec := testutil.CreateTestContext(nil, nil)

	outcome, err := apirequest.NewAPIRequestNode(nil).Execute(context.Background(), node, ec)

	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(), outcome)
	assert.Len(t, ec.Failures(), 1)
}

func TestAPIRequestNode_InvalidHeaders(t *testing.T) {
	node := testutil.CreateTestNode(models.NodeTypeAPIRequest, models.APIRequestConfig{
		URL: "http://example.test", Headers: "not json",
	})
	ec := testutil.CreateTestContext(nil, nil)

	_, err := apirequest.NewAPIRequestNode(nil).Execute(context.Background(), node, ec)

	require.NoError(t, err)
	require.Len(t, ec.Failures(), 1)
	assert.Contains(t, ec.Failures()[0].Error, "headers must be a JSON object")
}
