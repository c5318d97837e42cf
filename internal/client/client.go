// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client talks to a running lockoverlay daemon over its control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeranaias/lockoverlay/internal/overlay"
	"github.com/jeranaias/lockoverlay/internal/server"
	"github.com/jeranaias/lockoverlay/internal/settings"
	"github.com/jeranaias/lockoverlay/internal/status"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 10 * time.Second

// unixHost is the placeholder host used in URLs when dialling a socket.
const unixHost = "lockoverlay"

// ErrDaemonUnavailable means no daemon is listening on the control endpoint.
var ErrDaemonUnavailable = errors.New("lockoverlay daemon is not running")

// =============================================================================
// API ERRORS
// =============================================================================

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return e.Message
}

// Is maps error types onto the matching package sentinels so callers can use
// errors.Is(err, overlay.ErrAlreadyActive) and friends.
func (e *APIError) Is(target error) bool {
	switch e.Type {
	case server.ErrTypeAlreadyActive:
		return target == overlay.ErrAlreadyActive
	case server.ErrTypePINNotSet:
		return target == settings.ErrPINNotSet
	case server.ErrTypeInvalidPIN:
		return target == settings.ErrInvalidPIN
	}
	return false
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a control API client.
type Client struct {
	http    *http.Client
	dialer  *websocket.Dialer
	baseURL string
	wsURL   string
	token   string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout overrides DefaultTimeout for unary requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New returns a client for the daemon listening on addr (TCP host:port) or,
// when addr is empty, on the unix socket at socketPath.
func New(socketPath, addr string, opts ...Option) *Client {
	c := &Client{timeout: DefaultTimeout}

	if addr != "" {
		c.http = &http.Client{}
		c.dialer = &websocket.Dialer{HandshakeTimeout: DefaultTimeout}
		c.baseURL = "http://" + addr
		c.wsURL = "ws://" + addr
	} else {
		dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}
		c.http = &http.Client{Transport: &http.Transport{DialContext: dial}}
		c.dialer = &websocket.Dialer{NetDialContext: dial, HandshakeTimeout: DefaultTimeout}
		c.baseURL = "http://" + unixHost
		c.wsURL = "ws://" + unixHost
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate starts a session. A zero request activates with the daemon's
// stored settings.
func (c *Client) Activate(ctx context.Context, req server.ActivateRequest) (server.ControlResponse, error) {
	var resp server.ControlResponse
	err := c.do(ctx, http.MethodPost, "/v1/overlay/activate", req, &resp)
	return resp, err
}

// Dismiss requests dismissal. A nil pin means none was entered.
func (c *Client) Dismiss(ctx context.Context, pin *string) (server.DismissResponse, error) {
	var resp server.DismissResponse
	err := c.do(ctx, http.MethodPost, "/v1/overlay/dismiss", server.DismissRequest{PIN: pin}, &resp)
	return resp, err
}

// Stop force-stops the current session, if any.
func (c *Client) Stop(ctx context.Context) (server.ControlResponse, error) {
	var resp server.ControlResponse
	err := c.do(ctx, http.MethodPost, "/v1/overlay/stop", nil, &resp)
	return resp, err
}

// Status returns the controller snapshot.
func (c *Client) Status(ctx context.Context) (overlay.Snapshot, error) {
	var snap overlay.Snapshot
	err := c.do(ctx, http.MethodGet, "/v1/overlay/status", nil, &snap)
	return snap, err
}

// Health checks daemon liveness.
func (c *Client) Health(ctx context.Context) (server.HealthResponse, error) {
	var resp server.HealthResponse
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp)
	return resp, err
}

// Watch streams status events to fn until ctx is cancelled, fn returns an
// error, or the daemon closes the stream. A normal close and cancellation
// both return nil.
func (c *Client) Watch(ctx context.Context, enc status.Encoding, replay bool, fn func(status.Event) error) error {
	codec, err := status.CodecFor(enc)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("encoding", string(codec.Encoding()))
	if !replay {
		q.Set("replay", "false")
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL+"/v1/events?"+q.Encode(), c.header())
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if apiErr := readAPIError(resp); apiErr != nil {
				return apiErr
			}
		}
		return c.wrapTransport(err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		ev, err := codec.Decode(data)
		if err != nil {
			return err
		}
		if err := ev.Validate(); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header = c.header()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.wrapTransport(err)
	}
	defer resp.Body.Close()

	if apiErr := readAPIError(resp); apiErr != nil {
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readAPIError returns nil for 2xx responses.
func readAPIError(resp *http.Response) *APIError {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body server.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err == nil {
		apiErr.Type = body.Error.Type
		apiErr.Message = body.Error.Message
	}
	return apiErr
}

// wrapTransport maps dial failures onto ErrDaemonUnavailable.
func (c *Client) wrapTransport(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %w", ErrDaemonUnavailable, err)
	}
	return err
}
