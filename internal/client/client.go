package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"formlo/internal/api"
	"formlo/internal/config"
	"formlo/internal/logging"
)

const userAgent = "Formlo-Go/0.1.0"

// Client talks to the Formlo backend. All requests carry the session
// cookie; the jar is persisted to disk so sessions survive process exits.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	jar     *persistentJar
	logger  *slog.Logger
}

// New builds a Client from configuration. The cookie jar is loaded from the
// data directory when present.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.Backend.URL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}

	jar, err := openJar(cfg.CookieJarPath(), base)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Backend.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: base,
		http:    &http.Client{Jar: jar, Timeout: timeout},
		jar:     jar,
		logger:  logging.NewComponentLogger(logger, "client"),
	}, nil
}

// LoginURL is the browser navigation target that starts the OAuth flow.
// Login is a full-page redirect in the original design, never an API call.
func (c *Client) LoginURL() string {
	return c.endpoint("auth/login")
}

// Login drives the login redirect with the API client itself. Backends
// running local auth complete the flow and set the session cookie on the
// redirect; hosted OAuth deployments need a real browser instead.
func (c *Client) Login(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "auth/login", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Me returns the authenticated session, or an APIError with status 401.
func (c *Client) Me(ctx context.Context) (*api.Session, error) {
	var session api.Session
	if err := c.getJSON(ctx, "auth/me", &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Logout terminates the server-side session and drops local cookies.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "auth/logout", nil, nil); err != nil {
		return err
	}
	return c.jar.Clear()
}

// Upload submits a document and returns the freshly created job.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (*api.ConversionJob, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("read upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "upload", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var job api.ConversionJob
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Job fetches the current state of a conversion job.
func (c *Client) Job(ctx context.Context, id string) (*api.ConversionJob, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("job id is empty")
	}
	var job api.ConversionJob
	if err := c.getJSON(ctx, "jobs/"+url.PathEscape(id), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Forms fetches the full collection of generated forms.
func (c *Client) Forms(ctx context.Context) ([]api.FormRecord, error) {
	var records []api.FormRecord
	if err := c.getJSON(ctx, "forms", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteForm removes a generated form. The backend also deletes the
// artifact on the external form service, so callers must confirm first.
func (c *Client) DeleteForm(ctx context.Context, formID string) error {
	if strings.TrimSpace(formID) == "" {
		return errors.New("form id is empty")
	}
	return c.doJSON(ctx, http.MethodDelete, "forms/"+url.PathEscape(formID), nil, nil)
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.baseURL.String(), "/") + "/" + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	correlationID, ok := logging.CorrelationIDFromContext(ctx)
	if !ok {
		correlationID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", correlationID)
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := c.jar.Save(); err != nil {
		c.logger.Warn("persist cookie jar", logging.Error(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(data) > 0 {
		var envelope struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Detail != "" {
			apiErr.Detail = envelope.Detail
		}
	}
	return apiErr
}

// AsAPIError unwraps err into an APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
