//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"whitelist/internal/admission/handler"
	"whitelist/internal/admission/service"
	"whitelist/internal/admission/store/memory"
	"whitelist/internal/session"
	httptransport "whitelist/internal/transport/http"
	id "whitelist/pkg/domain"
	authmw "whitelist/pkg/platform/middleware/auth"
)

const (
	expectedChainID = 5
	signingKey      = "e2e-signing-key"
)

// TestContext holds one scenario's server and the last response seen.
type TestContext struct {
	server     *httptest.Server
	client     *http.Client
	tokens     *session.TokenService
	sessions   map[string]string
	lastStatus int
	lastBody   []byte
}

func NewTestContext() *TestContext {
	return &TestContext{
		client:   &http.Client{Timeout: 5 * time.Second},
		tokens:   session.NewTokenService(signingKey, "whitelist", "whitelist-api"),
		sessions: map[string]string{},
	}
}

// Deploy starts a fresh in-process server around a new whitelist.
func (tc *TestContext) Deploy(capacity int) error {
	tc.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(memory.New(), service.WithLogger(logger))
	if _, err := svc.Deploy(context.Background(), capacity); err != nil {
		return err
	}
	tc.server = httptest.NewServer(httptransport.NewRouter(httptransport.Config{
		Logger:        logger,
		Whitelist:     handler.New(svc, logger),
		RequireCaller: authmw.RequireCaller(session.NewValidatorAdapter(tc.tokens), expectedChainID, logger),
	}))
	return nil
}

func (tc *TestContext) Close() {
	if tc.server != nil {
		tc.server.Close()
		tc.server = nil
	}
}

// OpenSession mints a session token for address on chainID under name.
func (tc *TestContext) OpenSession(name, address string, chainID int64) error {
	identity, err := id.ParseIdentity(address)
	if err != nil {
		return err
	}
	token, err := tc.tokens.Issue(identity, chainID, time.Hour)
	if err != nil {
		return err
	}
	tc.sessions[name] = token
	return nil
}

func (tc *TestContext) Session(name string) (string, error) {
	token, ok := tc.sessions[name]
	if !ok {
		return "", fmt.Errorf("no session opened for %q", name)
	}
	return token, nil
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) POST(path string, body any, headers map[string]string) error {
	return tc.do(http.MethodPost, path, body, headers)
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	if tc.server == nil {
		return fmt.Errorf("no whitelist deployed")
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, tc.server.URL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

// PostStatus sends a bodiless POST without touching the last-response slot, so
// it is safe to call concurrently.
func (tc *TestContext) PostStatus(path string, headers map[string]string) (int, error) {
	req, err := http.NewRequest(http.MethodPost, tc.server.URL+path, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (tc *TestContext) GetLastStatusCode() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField reads a top-level or dotted field from the last JSON body.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	var cur any = body
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
		}
		cur, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
		}
	}
	return cur, nil
}
