package whitelistctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whitelist/internal/admission/handler"
)

// apiError is the server's JSON error envelope.
type apiError struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *apiError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Code, e.Status)
}

// client is a thin JSON client for the whitelist HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) Registry(ctx context.Context) (*handler.RegistryResponse, error) {
	var out handler.RegistryResponse
	if err := c.do(ctx, http.MethodGet, "/v1/whitelist/", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Me(ctx context.Context, token string) (*handler.StatusResponse, error) {
	var out handler.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/whitelist/me", token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Member(ctx context.Context, identity string) (*handler.MemberResponse, error) {
	var out handler.MemberResponse
	if err := c.do(ctx, http.MethodGet, "/v1/whitelist/members/"+url.PathEscape(identity), "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Register(ctx context.Context, token string) (*handler.RegisterResponse, error) {
	var out handler.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/v1/whitelist/register", token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) do(ctx context.Context, method, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
