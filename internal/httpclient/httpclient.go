// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package httpclient contains the small amount of request plumbing shared by
// the REST clients of the external services the wallet talks to.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the request timeout used when a client is created
	// without an explicit http.Client.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of a failed response body is kept in a
	// StatusError.
	maxErrorBody = 512
)

var (
	// ErrEmptyBaseURL is returned when a client is configured without a
	// base URL.
	ErrEmptyBaseURL = errors.New("empty base url")
)

// StatusError is returned when the remote service answers with a non-2xx
// status code.
type StatusError struct {
	// Code is the HTTP status code.
	Code int

	// Body is the (truncated) response body.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}

	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Client is a thin wrapper around an http.Client that is bound to a single
// base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a new Client for the given base URL. If httpClient is nil, a
// client with DefaultTimeout is used.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}, nil
}

// URL returns the absolute URL for the given path.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// GetJSON performs a GET request and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.Do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}

	return decode(body, out)
}

// PostJSON encodes in as JSON, posts it and decodes the JSON response into
// out. A nil out discards the response body.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	body, err := c.Do(
		ctx, http.MethodPost, path, "application/json",
		bytes.NewReader(payload),
	)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	return decode(body, out)
}

// GetText performs a GET request and returns the trimmed response body.
func (c *Client) GetText(ctx context.Context, path string) (string, error) {
	body, err := c.Do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}

// PostText posts a plain text body and returns the trimmed response body.
func (c *Client) PostText(ctx context.Context, path,
	text string) (string, error) {

	body, err := c.Do(
		ctx, http.MethodPost, path, "text/plain",
		strings.NewReader(text),
	)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}

// Do sends a request and returns the full response body. Responses with a
// non-2xx status code are turned into a *StatusError.
func (c *Client) Do(ctx context.Context, method, path, contentType string,
	reqBody io.Reader) ([]byte, error) {

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(body))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}

		return nil, &StatusError{Code: resp.StatusCode, Body: text}
	}

	return body, nil
}

// decode unmarshals a JSON response body.
func decode(body []byte, out any) error {
	err := json.Unmarshal(body, out)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
