// SPDX-License-Identifier: MIT

// Package dispatch talks to the downstream IPTV middleware over its JSON
// HTTP API. It implements lifecycle.Middleware.
package dispatch

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

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/teamcast/teamcast/internal/lifecycle"
	"github.com/teamcast/teamcast/internal/log"
)

// Client is a paced middleware client. Writes are rate limited so a large
// sync does not hammer the downstream admin API.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// Option adjusts the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRate sets the write pacing in requests per second.
func WithRate(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// New builds a client for the middleware at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Limit(5), 2),
		logger:  log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wireChannel struct {
	ID        string   `json:"id"`
	TVGID     string   `json:"tvg_id"`
	Name      string   `json:"name"`
	Logo      string   `json:"logo"`
	GroupID   string   `json:"channel_group_id"`
	StreamIDs []string `json:"streams"`
}

type wireStream struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Account string `json:"m3u_account"`
}

// ListChannels fetches the downstream channel set.
func (c *Client) ListChannels(ctx context.Context) ([]lifecycle.RemoteChannel, error) {
	var wires []wireChannel
	if err := c.do(ctx, http.MethodGet, "/api/channels/channels/", nil, &wires); err != nil {
		return nil, err
	}
	out := make([]lifecycle.RemoteChannel, 0, len(wires))
	for _, w := range wires {
		out = append(out, projectChannel(w))
	}
	return out, nil
}

// CreateChannel creates one downstream channel.
func (c *Client) CreateChannel(ctx context.Context, spec lifecycle.ChannelSpec) (lifecycle.RemoteChannel, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return lifecycle.RemoteChannel{}, err
	}
	var w wireChannel
	if err := c.do(ctx, http.MethodPost, "/api/channels/channels/", specBody(spec), &w); err != nil {
		return lifecycle.RemoteChannel{}, err
	}
	return projectChannel(w), nil
}

// UpdateChannel patches one downstream channel.
func (c *Client) UpdateChannel(ctx context.Context, id string, patch lifecycle.ChannelSpec) (lifecycle.RemoteChannel, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return lifecycle.RemoteChannel{}, err
	}
	var w wireChannel
	path := "/api/channels/channels/" + url.PathEscape(id) + "/"
	if err := c.do(ctx, http.MethodPatch, path, specBody(patch), &w); err != nil {
		return lifecycle.RemoteChannel{}, err
	}
	return projectChannel(w), nil
}

// DeleteChannel removes one downstream channel. Deleting an already-absent
// channel is not an error.
func (c *Client) DeleteChannel(ctx context.Context, id string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	path := "/api/channels/channels/" + url.PathEscape(id) + "/"
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil && strings.Contains(err.Error(), "status 404") {
		return nil
	}
	return err
}

// ListStreams fetches candidate streams, optionally filtered by name.
func (c *Client) ListStreams(ctx context.Context, filter string) ([]lifecycle.RemoteStream, error) {
	path := "/api/channels/streams/"
	if filter != "" {
		path += "?name=" + url.QueryEscape(filter)
	}
	var wires []wireStream
	if err := c.do(ctx, http.MethodGet, path, nil, &wires); err != nil {
		return nil, err
	}
	out := make([]lifecycle.RemoteStream, 0, len(wires))
	for _, w := range wires {
		out = append(out, lifecycle.RemoteStream{ID: w.ID, Name: w.Name, Account: w.Account})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, into any) error {
	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(blob)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("middleware %s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn().
			Str("event", "request.failed").
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("middleware request failed")
		return fmt.Errorf("middleware %s %s: status %d", method, path, resp.StatusCode)
	}
	if into == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("middleware %s %s: decode: %w", method, path, err)
	}
	return nil
}

func specBody(spec lifecycle.ChannelSpec) map[string]any {
	return map[string]any{
		"tvg_id":           spec.TVGID,
		"name":             spec.Name,
		"logo":             spec.LogoURL,
		"channel_group_id": spec.GroupID,
		"streams":          spec.StreamIDs,
	}
}

func projectChannel(w wireChannel) lifecycle.RemoteChannel {
	return lifecycle.RemoteChannel{
		ID:        w.ID,
		TVGID:     w.TVGID,
		Name:      w.Name,
		LogoURL:   w.Logo,
		GroupID:   w.GroupID,
		StreamIDs: w.StreamIDs,
	}
}
