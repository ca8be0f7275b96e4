// Package client talks to the stress test server over its REST API. A Client
// satisfies repositories.DeviceTestRepository, so the dashboard can run on
// top of a remote server the same way it runs on a local store.
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
	"strings"
	"sync"
	"time"

	"stresstest-server/auth"
	"stresstest-server/entities"
	"stresstest-server/repositories"
	"stresstest-server/usecases"
)

// Client is an HTTP record store.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client with a 10s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type envelope struct {
	Data   json.RawMessage   `json:"data"`
	Count  int               `json:"count"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// Login exchanges credentials for a token and keeps it for later requests.
func (c *Client) Login(ctx context.Context, username, password string) (*auth.LoginResult, error) {
	body := map[string]string{"username": username, "password": password}
	var res auth.LoginResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &res, false); err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

// Create posts a new record and copies the stored version, id included, into test.
func (c *Client) Create(ctx context.Context, test *entities.DeviceTest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/device-tests", test.Input(), test, true)
}

func (c *Client) GetByID(ctx context.Context, id string) (*entities.DeviceTest, error) {
	var t entities.DeviceTest
	if err := c.do(ctx, http.MethodGet, testPath(id), nil, &t, true); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) List(ctx context.Context) ([]entities.DeviceTest, error) {
	var tests []entities.DeviceTest
	if err := c.do(ctx, http.MethodGet, "/api/v1/device-tests", nil, &tests, true); err != nil {
		return nil, err
	}
	return tests, nil
}

// Update replaces every editable field of the stored record with test's.
func (c *Client) Update(ctx context.Context, test *entities.DeviceTest) error {
	return c.do(ctx, http.MethodPut, testPath(test.ID), test.Input(), test, true)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, testPath(id), nil, nil, true)
}

// Start, Complete and Fail run the lifecycle on the server so the transition
// is serialized with every other client's.
func (c *Client) Start(ctx context.Context, id string) (*entities.DeviceTest, error) {
	return c.action(ctx, id, "start")
}

func (c *Client) Complete(ctx context.Context, id string) (*entities.DeviceTest, error) {
	return c.action(ctx, id, "complete")
}

func (c *Client) Fail(ctx context.Context, id string) (*entities.DeviceTest, error) {
	return c.action(ctx, id, "fail")
}

func (c *Client) action(ctx context.Context, id, name string) (*entities.DeviceTest, error) {
	var t entities.DeviceTest
	if err := c.do(ctx, http.MethodPost, testPath(id)+"/"+name, nil, &t, true); err != nil {
		return nil, err
	}
	return &t, nil
}

// Versions fetches the software versions the server accepts.
func (c *Client) Versions(ctx context.Context) ([]string, error) {
	var v []string
	err := c.do(ctx, http.MethodGet, "/api/v1/versions", nil, &v, true)
	return v, err
}

func testPath(id string) string {
	return "/api/v1/device-tests/" + url.PathEscape(id)
}

// do sends one request. With wrapped set the response body is the
// {"data": ...} envelope; otherwise it decodes straight into out.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, wrapped bool) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", repositories.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", repositories.ErrStoreUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		return statusError(resp.StatusCode, env)
	}
	if out == nil {
		return nil
	}
	if !wrapped {
		return json.Unmarshal(raw, out)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decode response: %v", repositories.ErrStoreUnavailable, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", repositories.ErrStoreUnavailable, err)
	}
	return nil
}

// statusError turns an error response back into the server's domain error.
func statusError(code int, env envelope) error {
	switch {
	case code == http.StatusBadRequest && len(env.Fields) > 0:
		return &entities.ValidationError{Fields: env.Fields}
	case code == http.StatusNotFound:
		return repositories.ErrNotFound
	case code == http.StatusConflict:
		return fmt.Errorf("%w: %s", usecases.ErrInvalidTransition, env.Error)
	case code == http.StatusUnauthorized:
		return auth.ErrUnauthenticated
	case code >= 500:
		return fmt.Errorf("%w: server returned %d", repositories.ErrStoreUnavailable, code)
	default:
		return fmt.Errorf("server returned %d: %s", code, env.Error)
	}
}

var _ repositories.DeviceTestRepository = (*Client)(nil)
