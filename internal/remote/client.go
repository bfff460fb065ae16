// Package remote is the HTTP client for the task service under /v1.
package remote

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

	"golang.org/x/oauth2"

	"taskboard/internal/models"
	"taskboard/pkg/logger"
)

const defaultTimeout = 15 * time.Second

// ErrUnauthorized is returned when the service rejects the token.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return models.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return models.ErrValidation
	}
	return nil
}

// Client talks to the task service.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport. The token, if any, is layered on top.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New returns a client for baseURL (e.g. http://localhost:8080). A non-empty
// token is sent as a bearer Authorization header on every request.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: defaultTimeout}}
	for _, o := range opts {
		o(c)
	}
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.http)
		authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
		authed.Timeout = c.http.Timeout
		c.http = authed
	}
	return c, nil
}

// Ping checks the service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/ping", nil, nil, nil)
}

// FetchTasks lists tasks matching f.
func (c *Client) FetchTasks(ctx context.Context, f models.FetchFilter) ([]models.Task, error) {
	var out models.TaskList
	if err := c.do(ctx, http.MethodGet, "/v1/tasks", filterQuery(f), nil, &out); err != nil {
		return nil, err
	}
	if out.Tasks == nil {
		out.Tasks = []models.Task{}
	}
	return out.Tasks, nil
}

// CreateTask posts a new task and returns the stored record.
func (c *Client) CreateTask(ctx context.Context, p models.TaskPatch) (models.Task, error) {
	var t models.Task
	err := c.do(ctx, http.MethodPost, "/v1/tasks", nil, p, &t)
	return t, err
}

// UpdateTask sends a partial update for id.
func (c *Client) UpdateTask(ctx context.Context, id string, p models.TaskPatch) (models.Task, error) {
	p.ID = ""
	var t models.Task
	err := c.do(ctx, http.MethodPut, "/v1/tasks/"+url.PathEscape(id), nil, p, &t)
	return t, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/tasks/"+url.PathEscape(id), nil, nil, nil)
}

// BatchTasks applies ops in one request.
func (c *Client) BatchTasks(ctx context.Context, ops []models.BatchOperation) (models.BatchResult, error) {
	var res models.BatchResult
	err := c.do(ctx, http.MethodPost, "/v1/tasks/batch", nil, models.BatchRequest{Operations: ops}, &res)
	return res, err
}

func filterQuery(f models.FetchFilter) url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.DueDate != nil {
		q.Set("due_date", f.DueDate.String())
	}
	if f.Completed != nil {
		q.Set("completed", strconv.FormatBool(*f.Completed))
	}
	if f.Upcoming {
		q.Set("upcoming", "true")
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	logger.Debug(ctx, "Remote call", "method", method, "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(b))
	if json.Unmarshal(b, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}
