// Package rest is the HTTP client for the dashboard's student backend.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/eep-importer/internal/config"
	"github.com/ignite/eep-importer/internal/domain"
	"github.com/ignite/eep-importer/internal/pkg/httpretry"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
}

// Client implements the importer backend over the REST API.
// Reads go through a retrying client. The bulk import is not idempotent and
// is sent exactly once.
type Client struct {
	baseURL      string
	token        string
	httpClient   httpretry.HTTPDoer
	submitClient httpretry.HTTPDoer
}

// NewClient creates a new backend client
func NewClient(cfg config.BackendConfig) *Client {
	plain := &http.Client{Timeout: cfg.Timeout()}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		httpClient:   httpretry.NewRetryClient(plain, cfg.MaxRetries),
		submitClient: plain,
	}
}

// SetHTTPClient replaces the client used for lookups and batch fetches
// (useful for testing). Bulk imports keep the single-attempt client.
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// LookupStudents returns every student's identifier and name.
func (c *Client) LookupStudents(ctx context.Context) ([]domain.StudentSummary, error) {
	var out []domain.StudentSummary
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/students/lookup", nil, &out); err != nil {
		return nil, fmt.Errorf("lookup students: %w", err)
	}
	return out, nil
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

// FetchStudents loads the full records for ids in one request.
func (c *Client) FetchStudents(ctx context.Context, ids []string) ([]domain.Student, error) {
	if len(ids) == 0 {
		return []domain.Student{}, nil
	}
	var out []domain.Student
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/students/batch", batchRequest{IDs: ids}, &out); err != nil {
		return nil, fmt.Errorf("fetch %d students: %w", len(ids), err)
	}
	return out, nil
}

// BulkImport submits the combined create/update payload.
func (c *Client) BulkImport(ctx context.Context, payload domain.BulkImportPayload) (domain.ImportResult, error) {
	if payload.Create == nil {
		payload.Create = []domain.StudentPatch{}
	}
	if payload.Update == nil {
		payload.Update = []domain.StudentPatch{}
	}
	var out domain.ImportResult
	if err := c.do(ctx, c.submitClient, http.MethodPost, "/students/bulk-import", payload, &out); err != nil {
		return domain.ImportResult{}, err
	}
	return out, nil
}

// do performs an authenticated JSON request and decodes the response into out.
func (c *Client) do(ctx context.Context, doer httpretry.HTTPDoer, method, endpoint string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := doer.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage pulls a message out of a JSON error body, falling back to the
// raw text or the status line.
func errorMessage(raw []byte, status string) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &envelope) == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return status
}
