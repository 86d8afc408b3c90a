// Package api is the one-shot REST collaborator: session bootstrap, snapshot
// fetch, and match create/join. Everything realtime goes over the event
// channel instead.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fourfury/go/internal/apperr"
)

// Client is an HTTP client for the FourFury backend REST API. The cookie jar
// carries the session cookie issued by the bootstrap call, mirroring the
// browser's credentialed fetches.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewClient creates a REST client rooted at baseURL.
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
	}
}

// SetHeader sets a header sent on every request.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetTimeout overrides the default request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Connection(err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(responseBody, &eb)
		log.Debug().
			Int("status", resp.StatusCode).
			Str("endpoint", endpoint).
			Str("detail", eb.Detail).
			Msg("API request failed")
		return nil, apperr.FromStatus(resp.StatusCode, eb.Detail)
	}

	return responseBody, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	body, err := c.makeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	responseBody, err := c.makeRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}
