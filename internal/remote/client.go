// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

// Package remote talks to a keymaster-ca API server. Client implements the
// same interface as the database store so the console does not care which
// one it drives.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/toeirei/keymaster-ca/internal/db"
	"github.com/toeirei/keymaster-ca/internal/model"
)

// Client is an HTTP client for the API.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the server at baseURL. A nil hc uses a client
// with a 30 second timeout.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

// errorFor turns a non-2xx response into an error wrapping the matching
// store sentinel.
func errorFor(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = db.ErrNotFound
	case http.StatusConflict:
		sentinel = db.ErrDuplicate
	case http.StatusBadRequest:
		sentinel = db.ErrInvalid
	default:
		return fmt.Errorf("remote: %s %s: %s: %s", resp.Request.Method, resp.Request.URL.Path, resp.Status, body.Error)
	}
	return fmt.Errorf("%w: %s", sentinel, body.Error)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("remote: failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFor(resp)
	}
	if out == nil {
		return nil
	}
	if s, ok := out.(*string); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("remote: failed to read response: %w", err)
		}
		*s = string(data)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) ListAuthorities(ctx context.Context) ([]model.Authority, error) {
	var out []model.Authority
	err := c.do(ctx, http.MethodGet, "/authority", nil, &out)
	return out, err
}

func (c *Client) CreateAuthority(ctx context.Context, initial *model.Authority) (model.Authority, error) {
	var out model.Authority
	var in any
	if initial != nil {
		in = initial
	}
	err := c.do(ctx, http.MethodPost, "/authority", in, &out)
	return out, err
}

func (c *Client) UpdateAuthority(ctx context.Context, a model.Authority) (model.Authority, error) {
	var out model.Authority
	err := c.do(ctx, http.MethodPut, "/authority/"+url.PathEscape(a.ID), a, &out)
	return out, err
}

func (c *Client) DeleteAuthority(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/authority/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateHostToken(ctx context.Context, authorityID string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/authority/"+url.PathEscape(authorityID)+"/token", nil, &out)
	return out.Token, err
}

func (c *Client) DeleteHostToken(ctx context.Context, authorityID, token string) error {
	return c.do(ctx, http.MethodDelete, "/authority/"+url.PathEscape(authorityID)+"/token/"+url.PathEscape(token), nil, nil)
}

func (c *Client) ListNodes(ctx context.Context) ([]model.Node, error) {
	var out []model.Node
	err := c.do(ctx, http.MethodGet, "/node", nil, &out)
	return out, err
}

func (c *Client) CreateNode(ctx context.Context, n model.Node) (model.Node, error) {
	var out model.Node
	err := c.do(ctx, http.MethodPost, "/node", n, &out)
	return out, err
}

func (c *Client) UpdateNode(ctx context.Context, n model.Node) (model.Node, error) {
	var out model.Node
	err := c.do(ctx, http.MethodPut, "/node/"+url.PathEscape(n.ID), n, &out)
	return out, err
}

func (c *Client) DeleteNode(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/node/"+url.PathEscape(id), nil, nil)
}

// PublicKeys fetches the public keys of ids in order.
func (c *Client) PublicKeys(ctx context.Context, ids []string) ([]string, error) {
	escaped := make([]string, 0, len(ids))
	for _, id := range ids {
		escaped = append(escaped, url.PathEscape(id))
	}
	var text string
	if err := c.do(ctx, http.MethodGet, "/ssh_public_key/"+strings.Join(escaped, ","), nil, &text); err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimRight(text, "\n"), "\n"), nil
}

// SignHostCertificate asks the server to certify a host key.
func (c *Client) SignHostCertificate(ctx context.Context, token, hostPublicKey string, hostnames []string) (string, error) {
	in := map[string]any{"token": token, "public_key": hostPublicKey, "hostnames": hostnames}
	var out struct {
		Certificate string `json:"certificate"`
	}
	if err := c.do(ctx, http.MethodPost, "/ssh_host_certificate", in, &out); err != nil {
		return "", err
	}
	return out.Certificate, nil
}
