// Package client talks to the dashboard config service over its HTTP/JSON
// API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"brkdash/internal/audit"
	"brkdash/internal/configdoc/model"
	"brkdash/internal/services"
)

// DefaultBaseURL is where the dashboard service listens by default.
const DefaultBaseURL = "http://localhost:3004"

// ErrPartialDelete is returned alongside the per-file results when at least
// one backup could not be deleted.
var ErrPartialDelete = errors.New("not every backup was deleted")

// APIError is a non-2xx answer from the service. It unwraps to the model
// sentinel matching its status code, so callers can use errors.Is.
type APIError struct {
	StatusCode     int
	Message        string
	FirstTimeSetup bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusConflict:
		return model.ErrAlreadyExists
	case http.StatusBadRequest:
		if e.Message == "Invalid filename" {
			return model.ErrInvalidName
		}
		return model.ErrInvalidRequest
	}
	return nil
}

// IsFirstTimeSetup reports whether err says the setup document was never saved.
func IsFirstTimeSetup(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.FirstTimeSetup
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the service at baseURL (e.g.
// "http://localhost:3004").
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the service address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// --- Setup document ---

func (c *Client) LoadSetupConfig(ctx context.Context) (json.RawMessage, error) {
	var doc json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/config", nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveSetupConfig saves doc, which may be a json.RawMessage or any value
// that marshals to a JSON object.
func (c *Client) SaveSetupConfig(ctx context.Context, doc any) (*model.SaveResponse, error) {
	var resp model.SaveResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/config/save", doc, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ResetSetupConfig(ctx context.Context) (*model.ResetResponse, error) {
	var resp model.ResetResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/api/config/reset", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Company document ---

// LoadCompanyConfig returns the typed view of the company document. Fields
// the typed model does not know are dropped; use LoadCompanyConfigRaw to
// keep them.
func (c *Client) LoadCompanyConfig(ctx context.Context) (*model.CompanyConfig, error) {
	var cfg model.CompanyConfig
	if err := c.doJSON(ctx, http.MethodGet, "/api/company-config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) LoadCompanyConfigRaw(ctx context.Context) (json.RawMessage, error) {
	var doc json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/company-config", nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) SaveCompanyConfig(ctx context.Context, doc any) (*model.SaveResponse, error) {
	var resp model.SaveResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/company-config", doc, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ResetCompanyConfig(ctx context.Context) (*model.ResetResponse, error) {
	var resp model.ResetResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/api/company-config/reset", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Server-side entity operations ---

func (c *Client) AddEntity(ctx context.Context, collection string, entity any) (*model.EntityResponse, error) {
	var resp model.EntityResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/company-config/"+url.PathEscape(collection), entity, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) UpdateEntity(ctx context.Context, collection, id string, entity any) (*model.EntityResponse, error) {
	var resp model.EntityResponse
	if err := c.doJSON(ctx, http.MethodPut, entityPath(collection, id), entity, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DeleteEntity(ctx context.Context, collection, id string) (*model.EntityResponse, error) {
	var resp model.EntityResponse
	if err := c.doJSON(ctx, http.MethodDelete, entityPath(collection, id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func entityPath(collection, id string) string {
	return "/api/company-config/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
}

// --- Backups ---

func (c *Client) ListBackups(ctx context.Context) ([]model.BackupRecord, error) {
	var resp model.BackupListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/company-config/backups", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Backups == nil {
		resp.Backups = []model.BackupRecord{}
	}
	return resp.Backups, nil
}

// DownloadBackup streams the named backup into w and returns the number of
// bytes copied.
func (c *Client) DownloadBackup(ctx context.Context, filename string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/company-config/backups/"+url.PathEscape(filename), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("reading backup: %w", err)
	}
	return n, nil
}

// DeleteBackups deletes every named backup. When some fail the response is
// still returned, together with ErrPartialDelete.
func (c *Client) DeleteBackups(ctx context.Context, filenames []string) (*model.DeleteBackupsResponse, error) {
	var resp model.DeleteBackupsResponse
	body := model.DeleteBackupsRequest{Filenames: filenames}
	if err := c.doJSON(ctx, http.MethodDelete, "/api/company-config/backups", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return &resp, fmt.Errorf("%w: %s", ErrPartialDelete, resp.Message)
	}
	return &resp, nil
}

// --- Service status ---

func (c *Client) Health(ctx context.Context) (*model.HealthResponse, error) {
	var resp model.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ServicesStatus(ctx context.Context) (*services.Status, error) {
	var resp services.Status
	if err := c.doJSON(ctx, http.MethodGet, "/api/services/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AuditLog lists the newest audit entries. A limit of 0 uses the server
// default.
func (c *Client) AuditLog(ctx context.Context, limit int) ([]audit.Entry, error) {
	path := "/api/audit"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Entries []audit.Entry `json:"entries"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// --- Internal helpers ---

func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// do sends the request and turns any status >= 400 into an *APIError. On
// success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var errResp model.ErrorResponse
	if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, FirstTimeSetup: errResp.FirstTimeSetup}
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
}
