// Package apirequest provides the node that calls an arbitrary HTTP endpoint.
package apirequest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/template"
	"github.com/itchyny/gojq"
)

const (
	ResponseVariable = "apiResponse"
	StatusVariable   = "apiStatus"
	ResultVariable   = "apiResult"

	maxResponseBytes = 5 << 20
)

type APIRequestNode struct {
	client protocol.HTTPDoer

	mu      sync.RWMutex
	filters map[string]*gojq.Code
}

// NewAPIRequestNode issues requests through client, http.DefaultClient when nil.
func NewAPIRequestNode(client protocol.HTTPDoer) *APIRequestNode {
	if client == nil {
		client = http.DefaultClient
	}

	return &APIRequestNode{client: client, filters: make(map[string]*gojq.Code)}
}

func (n *APIRequestNode) Type() models.NodeType { return models.NodeTypeAPIRequest }

// Execute never aborts the run; transport and status failures are recorded as soft failures.
func (n *APIRequestNode) Execute(ctx context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.APIRequestConfig)

	err := n.call(ctx, config, ec)
	if err != nil {
		ec.Fail(node, err)
	}

	return protocol.Continue(), nil
}

func (n *APIRequestNode) call(ctx context.Context, config models.APIRequestConfig, ec *models.ExecutionContext) error {
	url := strings.TrimSpace(template.Interpolate(config.URL, ec))
	if url == "" {
		return fmt.Errorf("url is required")
	}

	method := strings.ToUpper(strings.TrimSpace(config.Method))
	if method == "" {
		method = http.MethodGet
	}

	var (
		body        io.Reader
		contentType string
	)

	if raw := strings.TrimSpace(template.Interpolate(string(config.Body), ec)); raw != "" && method != http.MethodGet {
		body = strings.NewReader(raw)

		if json.Valid([]byte(raw)) {
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	headers, err := parseHeaders(template.Interpolate(string(config.Headers), ec))
	if err != nil {
		return err
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	ec.Logf("🌐 %s %s", method, url)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	ec.SetVariable(ResponseVariable, string(payload))
	ec.SetVariable(StatusVariable, resp.StatusCode)
	ec.Logf("🌐 Response %d (%d bytes)", resp.StatusCode, len(payload))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request returned status %d", resp.StatusCode)
	}

	if config.Extract == "" {
		return nil
	}

	result, err := n.extract(ctx, config.Extract, payload)
	if err != nil {
		return err
	}

	ec.SetVariable(ResultVariable, result)

	return nil
}

// parseHeaders accepts a JSON object; blank text means no headers.
func parseHeaders(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var decoded map[string]any

	err := json.Unmarshal([]byte(raw), &decoded)
	if err != nil {
		return nil, fmt.Errorf("headers must be a JSON object: %w", err)
	}

	headers := make(map[string]string, len(decoded))
	for key, value := range decoded {
		headers[key] = template.Stringify(value)
	}

	return headers, nil
}

func (n *APIRequestNode) extract(ctx context.Context, filter string, payload []byte) (any, error) {
	var input any

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	err := decoder.Decode(&input)
	if err != nil {
		return nil, fmt.Errorf("extract requires a JSON response: %w", err)
	}

	code, err := n.compile(filter)
	if err != nil {
		return nil, err
	}

	var results []any

	iter := code.RunWithContext(ctx, normalize(input))
	for {
		value, ok := iter.Next()
		if !ok {
			break
		}

		if err, isErr := value.(error); isErr {
			return nil, fmt.Errorf("extract %q failed: %w", filter, err)
		}

		results = append(results, value)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (n *APIRequestNode) compile(filter string) (*gojq.Code, error) {
	n.mu.RLock()
	code, ok := n.filters[filter]
	n.mu.RUnlock()

	if ok {
		return code, nil
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("invalid extract filter %q: %w", filter, err)
	}

	code, err = gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, fmt.Errorf("invalid extract filter %q: %w", filter, err)
	}

	n.mu.Lock()
	n.filters[filter] = code
	n.mu.Unlock()

	return code, nil
}

// normalize converts json.Number into the float64 values gojq operates on.
func normalize(value any) any {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}

		return f
	case map[string]any:
		for key, item := range v {
			v[key] = normalize(item)
		}

		return v
	case []any:
		for i, item := range v {
			v[i] = normalize(item)
		}

		return v
	default:
		return v
	}
}
