// Package clients holds the JSON-over-HTTP plumbing shared by the outbound API clients.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// StatusError is returned when the remote API answers with a non-2xx status.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError

	return errors.As(err, &statusErr) && statusErr.Code == code
}

// NewHTTPClient returns a client with DefaultTimeout.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// DoJSON sends in as a JSON body (none when nil) and decodes a JSON response into out (skipped when nil).
// Transport errors are wrapped with %w so callers can match the underlying syscall errors.
func DoJSON(ctx context.Context, client *http.Client, method, url string, header http.Header, in, out any) error {
	var body io.Reader

	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}

		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		endpoint := *req.URL
		endpoint.RawQuery = ""

		return &StatusError{Method: method, URL: endpoint.Redacted(), Code: resp.StatusCode, Body: string(bytes.TrimSpace(payload))}
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	err = json.Unmarshal(payload, out)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Bearer returns an Authorization header carrying token.
func Bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}
