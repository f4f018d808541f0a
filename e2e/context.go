// Package e2e drives a running foodlink server through its HTTP API with
// godog scenarios. Point FOODLINK_E2E_URL at the server; the signing key,
// issuer and audience must match its JWT settings.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type user struct {
	id    string
	roles []string
}

// TestContext holds one scenario's callers, the last response, and values
// saved between steps.
type TestContext struct {
	BaseURL    string
	SigningKey string
	Issuer     string
	Audience   string

	client     *http.Client
	users      map[string]user
	current    string
	lastStatus int
	lastBody   []byte
	saved      map[string]string
}

func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:    envOr("FOODLINK_E2E_URL", "http://localhost:8080"),
		SigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Issuer:     envOr("JWT_ISSUER", "foodlink"),
		Audience:   envOr("JWT_AUDIENCE", "foodlink-api"),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.users = map[string]user{}
	tc.saved = map[string]string{}
	tc.current = ""
	tc.lastStatus = 0
	tc.lastBody = nil
}

// AddUser registers a named caller with a fresh id.
func (tc *TestContext) AddUser(name, role string) {
	tc.users[name] = user{id: uuid.NewString(), roles: []string{role}}
}

// ActAs makes name the caller of subsequent requests.
func (tc *TestContext) ActAs(name string) error {
	if _, ok := tc.users[name]; !ok {
		return fmt.Errorf("unknown user %q", name)
	}
	tc.current = name
	return nil
}

func (tc *TestContext) token() (string, error) {
	u, ok := tc.users[tc.current]
	if !ok {
		return "", fmt.Errorf("no current user")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": u.id,
		"roles":   u.roles,
		"sub":     u.id,
		"iss":     tc.Issuer,
		"aud":     tc.Audience,
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tc.SigningKey))
}

func (tc *TestContext) Do(ctx context.Context, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.current != "" {
		token, err := tc.token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
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

func (tc *TestContext) LastStatus() int  { return tc.lastStatus }
func (tc *TestContext) LastBody() []byte { return tc.lastBody }

// Field reads a top-level field of the last JSON response.
func (tc *TestContext) Field(name string) (any, error) {
	var m map[string]any
	if err := json.Unmarshal(tc.lastBody, &m); err != nil {
		return nil, fmt.Errorf("decode response: %w (body %s)", err, tc.lastBody)
	}
	v, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", name, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) Save(key, value string) { tc.saved[key] = value }

func (tc *TestContext) Saved(key string) (string, error) {
	v, ok := tc.saved[key]
	if !ok {
		return "", fmt.Errorf("nothing saved as %q", key)
	}
	return v, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
