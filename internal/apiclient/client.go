// Package apiclient talks to the session API over HTTP on behalf of the
// capture worker and the operator CLI.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 30 second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a client for the API rooted at baseURL, e.g.
// http://localhost:8080/api/v1. token is sent as a bearer credential.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid api base url %q", common.ErrConfiguration, baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type UploadRequest struct {
	ContentType      string `json:"contentType,omitempty"`
	ExpiresInSeconds *int   `json:"expiresInSeconds,omitempty"`
}

type CompleteUploadRequest struct {
	Checksum      string  `json:"checksum"`
	FileSizeBytes int64   `json:"fileSizeBytes"`
	Encryption    *string `json:"encryption,omitempty"`
}

type Event struct {
	Level   models.LogLevel `json:"level"`
	Message string          `json:"message"`
	Context map[string]any  `json:"context,omitempty"`
}

func (c *Client) RequestUpload(ctx context.Context, sessionID string, req UploadRequest) (*models.SignedURL, error) {
	var out models.SignedURL
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "request-upload"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CompleteUpload(ctx context.Context, sessionID string, req CompleteUploadRequest) error {
	return c.do(ctx, http.MethodPost, sessionPath(sessionID, "complete-upload"), req, nil)
}

func (c *Client) RequestDownload(ctx context.Context, sessionID string, expiresInSeconds *int) (*models.SignedURL, error) {
	body := struct {
		ExpiresInSeconds *int `json:"expiresInSeconds,omitempty"`
	}{expiresInSeconds}

	var out models.SignedURL
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "request-download"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RecordEvent(ctx context.Context, sessionID string, ev Event) error {
	return c.do(ctx, http.MethodPost, sessionPath(sessionID, "events"), ev, nil)
}

// ReportFailure moves the session into AUTH_ERROR or PROXY_ERROR.
func (c *Client) ReportFailure(ctx context.Context, sessionID string, kind models.SessionStatus, detail string) (*models.SessionView, error) {
	body := struct {
		Kind   models.SessionStatus `json:"kind"`
		Detail string               `json:"detail,omitempty"`
	}{kind, detail}

	var out models.SessionView
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "failure"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MySessions(ctx context.Context) ([]*models.SessionView, error) {
	var out []*models.SessionView
	if err := c.do(ctx, http.MethodGet, "/sessions/my-sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SharedStats(ctx context.Context) (*models.SharedSessionStats, error) {
	var out models.SharedSessionStats
	if err := c.do(ctx, http.MethodGet, "/sessions/shared-stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]*models.SessionView, error) {
	var out []*models.SessionView
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MarkReady(ctx context.Context, sessionID string) (*models.SessionView, error) {
	var out models.SessionView
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "mark-ready"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func sessionPath(id, action string) string {
	return "/sessions/" + url.PathEscape(id) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", common.ContentTypeJSON)
	}
	req.Header.Set("Accept", common.ContentTypeJSON)
	if c.token != "" {
		req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	se := &StatusError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Code != "" {
		se.Code = payload.Error.Code
		se.Message = payload.Error.Message
	} else {
		se.Message = strings.TrimSpace(string(raw))
	}
	return se
}
