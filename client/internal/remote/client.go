package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evoapps/datastore/pkg/types"
)

// DefaultAttempts is how many times a request is tried before giving up.
const DefaultAttempts = 4

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	switch e.Code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client talks to one datastore server.
type Client struct {
	server string
	admin  string
	http   *http.Client
	dialer *websocket.Dialer

	attempts     int
	retryInitial time.Duration
}

// New returns a Client for the document router at server and the admin
// listener at admin. timeout bounds each HTTP request; zero means none.
func New(server, admin string, timeout time.Duration) *Client {
	return &Client{
		server:   strings.TrimRight(server, "/"),
		admin:    strings.TrimRight(admin, "/"),
		http:     &http.Client{Timeout: timeout},
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		attempts: DefaultAttempts,
	}
}

// Get returns the compact JSON document stored at path. A document that was
// never written comes back as [].
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Put stores body at path.
func (c *Client) Put(ctx context.Context, path string, body []byte) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	var res types.WriteResult
	if err := json.Unmarshal(resp, &res); err != nil {
		return fmt.Errorf("decode write result: %w", err)
	}
	if !res.Success {
		return errors.New("server did not confirm the write")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	target := c.server + "/data/" + escapePath(path)
	bo := newBackoff(c.retryInitial)

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		resp, err := c.once(ctx, method, target, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return nil, err
		}
		if ctx.Err() != nil || attempt == c.attempts {
			break
		}

		wait := bo.next()
		slog.Warn("request failed, will retry",
			"method", method, "url", target, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// Watch streams change events whose path matches the glob match (empty for
// all) to fn. It reconnects after any failure and returns nil once ctx is
// cancelled.
func (c *Client) Watch(ctx context.Context, match string, fn func(types.ChangeEvent)) error {
	u, err := c.feedURL(match)
	if err != nil {
		return err
	}
	bo := newBackoff(c.retryInitial)

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, resp, err := c.dialer.DialContext(ctx, u, nil)
		// A 4xx handshake (bad glob, feed disabled, wrong port) will not
		// succeed on retry.
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return &StatusError{Code: resp.StatusCode, Message: "feed rejected the request"}
		}
		if err == nil {
			bo.reset()
			err = c.follow(ctx, conn, fn)
		}
		if ctx.Err() != nil {
			return nil
		}

		wait := bo.next()
		slog.Warn("change feed lost, will reconnect", "url", u, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// follow reads frames from conn until it fails or ctx is cancelled.
func (c *Client) follow(ctx context.Context, conn *websocket.Conn, fn func(types.ChangeEvent)) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		switch msg.Event {
		case types.EventHello:
			slog.Debug("change feed connected")
		case types.EventChange:
			var ev types.ChangeEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				return fmt.Errorf("decode change: %w", err)
			}
			fn(ev)
		}
	}
}

func (c *Client) feedURL(match string) (string, error) {
	u, err := url.Parse(c.admin)
	if err != nil {
		return "", fmt.Errorf("admin url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/changes"
	if match != "" {
		u.RawQuery = url.Values{"match": {match}}.Encode()
	}
	return u.String(), nil
}

// escapePath escapes each segment of a slash-separated document path.
func escapePath(p string) string {
	segs := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
