// Package remote provides a client for a running rampd stream server. It
// covers the full HTTP surface: state snapshots, move submission and the
// live event stream.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stepcraft/rampd/service"
)

const defaultTimeout = 5 * time.Second

// Client talks to one rampd server. It is safe for concurrent use.
type Client struct {
	addr   string
	http   *http.Client
	dialer *websocket.Dialer
}

// Option configures the client.
type Option func(*Client)

// WithTimeout overrides the request timeout for HTTP calls and the
// WebSocket handshake.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
		c.dialer.HandshakeTimeout = timeout
	}
}

// NewClient returns a client for the server at addr (host:port, no scheme).
func NewClient(addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("server address is required")
	}
	client := &Client{
		addr:   addr,
		http:   &http.Client{Timeout: defaultTimeout},
		dialer: &websocket.Dialer{HandshakeTimeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// State fetches the current state of every axis.
func (c *Client) State(ctx context.Context) ([]service.AxisState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.addr+"/state", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch state: unexpected status %s", resp.Status)
	}

	var body struct {
		Axes []service.AxisState `json:"axes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return body.Axes, nil
}

// Move submits one motion to the named axis. The server validates the
// request against the axis limits.
func (c *Client) Move(ctx context.Context, axis string, steps uint32, maxVelocity float64) error {
	payload, err := json.Marshal(struct {
		Axis        string  `json:"axis"`
		Steps       uint32  `json:"steps"`
		MaxVelocity float64 `json:"max_velocity"`
	}{Axis: axis, Steps: steps, MaxVelocity: maxVelocity})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+c.addr+"/move", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit move: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("submit move: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

// Stream subscribes to the server's motion events. The returned channel is
// closed when the context is cancelled, the connection drops or the cancel
// function is called. Events sent before the server confirms the
// subscription are never delivered, so callers should subscribe first and
// submit moves after Stream returns.
func (c *Client) Stream(ctx context.Context) (<-chan service.Event, func(), error) {
	conn, resp, err := c.dialer.DialContext(ctx, "ws://"+c.addr+"/stream", nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial stream: %w", err)
	}

	var hello service.Event
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("read subscription confirmation: %w", err)
	}
	if hello.Type != service.EventSubscribed {
		conn.Close()
		return nil, nil, fmt.Errorf("unexpected first event %q", hello.Type)
	}

	events := make(chan service.Event, 64)
	done := make(chan struct{})

	go func() {
		defer close(events)
		for {
			var ev service.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			conn.Close()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	return events, cancel, nil
}
