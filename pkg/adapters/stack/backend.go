// Package stack drives an orchestration service that deploys stack templates.
// Commands queued during a pass are merged into one template update per drain.
package stack

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
)

// ErrStackNotFound is returned by a Backend when the stack does not exist.
var ErrStackNotFound = errors.New("stack not found")

// Status is the state of a deployed stack as reported by the backend.
type Status struct {
	ID         string         `json:"id"`
	Name       string         `json:"stack_name"`
	Status     string         `json:"stack_status"`
	Parameters map[string]any `json:"parameters"`
}

// Backend is the orchestration service API used by the channel.
type Backend interface {
	Get(ctx context.Context, name string) (*Status, error)
	Template(ctx context.Context, name string) (map[string]any, error)
	Create(ctx context.Context, name string, template, parameters map[string]any) error
	Update(ctx context.Context, name string, template, parameters map[string]any) error
	Delete(ctx context.Context, name string) error
}

// HTTPBackend talks to the orchestration service REST API on behalf of one tenant.
type HTTPBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(b *HTTPBackend) {
		b.client = client
	}
}

// NewHTTPBackend creates a backend for baseURL. Requests are scoped to tenantID
// when it is set and authenticated with token.
func NewHTTPBackend(baseURL, tenantID, token string, opts ...HTTPOption) *HTTPBackend {
	base := strings.TrimRight(baseURL, "/")
	if tenantID != "" {
		base += "/" + url.PathEscape(tenantID)
	}
	b := &HTTPBackend{
		baseURL: base,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *HTTPBackend) stackURL(name string, rest ...string) string {
	parts := append([]string{b.baseURL, "stacks", url.PathEscape(name)}, rest...)
	return strings.Join(parts, "/")
}

func (b *HTTPBackend) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("X-Auth-Token", b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrStackNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, target, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, target, err)
	}
	return nil
}

// Get returns the stack status.
func (b *HTTPBackend) Get(ctx context.Context, name string) (*Status, error) {
	var resp struct {
		Stack Status `json:"stack"`
	}
	if err := b.do(ctx, http.MethodGet, b.stackURL(name), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Stack, nil
}

// Template returns the template the stack is currently deployed with.
func (b *HTTPBackend) Template(ctx context.Context, name string) (map[string]any, error) {
	var template map[string]any
	if err := b.do(ctx, http.MethodGet, b.stackURL(name, "template"), nil, &template); err != nil {
		return nil, err
	}
	return template, nil
}

// Create deploys a new stack.
func (b *HTTPBackend) Create(ctx context.Context, name string, template, parameters map[string]any) error {
	body := map[string]any{
		"stack_name": name,
		"template":   template,
		"parameters": parameters,
	}
	return b.do(ctx, http.MethodPost, b.baseURL+"/stacks", body, nil)
}

// Update replaces the template and parameters of an existing stack.
func (b *HTTPBackend) Update(ctx context.Context, name string, template, parameters map[string]any) error {
	body := map[string]any{
		"template":   template,
		"parameters": parameters,
	}
	return b.do(ctx, http.MethodPut, b.stackURL(name), body, nil)
}

// Delete removes the stack.
func (b *HTTPBackend) Delete(ctx context.Context, name string) error {
	return b.do(ctx, http.MethodDelete, b.stackURL(name), nil, nil)
}
