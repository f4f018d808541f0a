// Package sparql implements the attribute store over the SPARQL 1.1 protocol.
// Queries go to the repository endpoint as GET ?query=, updates are POSTed as
// form-encoded update= to the statements endpoint.
package sparql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	resultsMediaType = "application/sparql-results+json"
	maxResponseBytes = 8 << 20
	defaultTimeout   = 10 * time.Second
)

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sparql endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to one triple repository.
type Client struct {
	queryURL  string
	updateURL string
	http      *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

// New builds a client. An empty updateURL defaults to queryURL + "/statements".
func New(queryURL, updateURL string, opts ...Option) (*Client, error) {
	if queryURL == "" {
		return nil, errors.New("sparql query url is required")
	}
	if _, err := url.Parse(queryURL); err != nil {
		return nil, fmt.Errorf("parse sparql query url: %w", err)
	}
	if updateURL == "" {
		updateURL = strings.TrimRight(queryURL, "/") + "/statements"
	}
	c := &Client{
		queryURL:  queryURL,
		updateURL: updateURL,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type binding struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type resultSet struct {
	Boolean *bool `json:"boolean"`
	Results struct {
		Bindings []map[string]binding `json:"bindings"`
	} `json:"results"`
}

func (c *Client) query(ctx context.Context, q string) ([]map[string]binding, error) {
	rs, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return rs.Results.Bindings, nil
}

func (c *Client) ask(ctx context.Context, q string) (bool, error) {
	rs, err := c.fetch(ctx, q)
	if err != nil {
		return false, err
	}
	if rs.Boolean == nil {
		return false, errors.New("sparql ASK answered without a boolean")
	}
	return *rs.Boolean, nil
}

func (c *Client) fetch(ctx context.Context, q string) (*resultSet, error) {
	u, err := url.Parse(c.queryURL)
	if err != nil {
		return nil, fmt.Errorf("parse sparql query url: %w", err)
	}
	params := u.Query()
	params.Set("query", prefixes+q)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build sparql query: %w", err)
	}
	req.Header.Set("Accept", resultsMediaType)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var rs resultSet
	if err := json.Unmarshal(body, &rs); err != nil {
		return nil, fmt.Errorf("decode sparql results: %w", err)
	}
	return &rs, nil
}

func (c *Client) update(ctx context.Context, u string) error {
	form := url.Values{"update": {prefixes + u}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.updateURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sparql update: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", resultsMediaType)
	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sparql request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read sparql response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

// Ping asks the repository a trivial question.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.ask(ctx, "ASK {}\n"); err != nil {
		return fmt.Errorf("ping sparql endpoint: %w", err)
	}
	return nil
}
