package whatsapp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/leadflow/pkg/clients/whatsapp"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, got *map[string]any) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/phone-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer wa-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid"}]}`))
	}))
}

func TestClient_SendTemplate(t *testing.T) {
	var got map[string]any

	server := newServer(t, &got)
	defer server.Close()

	client := whatsapp.NewClient(whatsapp.Config{BaseURL: server.URL, PhoneNumberID: "phone-1", AccessToken: "wa-token"}, server.Client())

	err := client.SendTemplate(context.Background(), protocol.WhatsAppTemplate{
		To: "+1 (555) 0123", Name: "intro", Language: "en_US", Parameters: []string{"Joe"},
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{
		"messaging_product": "whatsapp",
		"to": "15550123",
		"type": "template",
		"template": {
			"name": "intro",
			"language": {"code": "en_US"},
			"components": [{"type": "body", "parameters": [{"type": "text", "text": "Joe"}]}]
		}
	}`, mustJSON(t, got))
}

func TestClient_SendText(t *testing.T) {
	var got map[string]any

	server := newServer(t, &got)
	defer server.Close()

	client := whatsapp.NewClient(whatsapp.Config{BaseURL: server.URL, PhoneNumberID: "phone-1", AccessToken: "wa-token"}, server.Client())

	require.NoError(t, client.SendText(context.Background(), "+15550123", "Workflow failed"))
	assert.Equal(t, "text", got["type"])
	assert.Equal(t, map[string]any{"body": "Workflow failed"}, got["text"])
}

func TestClient_NotConfigured(t *testing.T) {
	err := whatsapp.NewClient(whatsapp.Config{}, nil).SendText(context.Background(), "1", "x")

	require.ErrorIs(t, err, whatsapp.ErrNotConfigured)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()

	encoded, err := json.Marshal(v)
	require.NoError(t, err)

	return string(encoded)
}
