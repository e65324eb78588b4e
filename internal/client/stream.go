package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"syslink-agent/internal/model"
)

// StreamClient is a websocket session on /ws/stream.
type StreamClient struct {
	mu sync.Mutex

	logger       *slog.Logger
	conn         *websocket.Conn
	writeTimeout time.Duration
	pingCancel   context.CancelFunc
}

type StreamOptions struct {
	TLS          *tls.Config
	WriteTimeout time.Duration
	PingInterval time.Duration
	Logger       *slog.Logger
}

// Stream opens the live metrics stream. The token is sent as a query
// parameter because browsers and phones cannot set headers on upgrades.
func (c *Client) Stream(ctx context.Context, opts StreamOptions) (*StreamClient, error) {
	u, err := streamURL(c.BaseURL, c.Token)
	if err != nil {
		return nil, &UnknownError{newBase("build stream url", err)}
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dialOpts := &websocket.DialOptions{}
	if opts.TLS != nil {
		dialOpts.HTTPClient = &http.Client{Transport: &http.Transport{TLSClientConfig: opts.TLS}}
	}
	conn, resp, err := websocket.Dial(ctx, u, dialOpts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resp != nil && resp.StatusCode >= 400 {
			return nil, statusError(resp.StatusCode, "")
		}
		return nil, Classify(fmt.Errorf("websocket dial: %w", err))
	}
	conn.SetReadLimit(10 << 20)

	s := &StreamClient{logger: opts.Logger, conn: conn, writeTimeout: opts.WriteTimeout}
	s.startPingLoop(opts.PingInterval)
	return s, nil
}

func (s *StreamClient) Subscribe(ctx context.Context, channel string) error {
	return s.send(ctx, model.StreamRequest{Type: "subscribe", Channel: channel})
}

func (s *StreamClient) Unsubscribe(ctx context.Context, channel string) error {
	return s.send(ctx, model.StreamRequest{Type: "unsubscribe", Channel: channel})
}

func (s *StreamClient) Ping(ctx context.Context) error {
	return s.send(ctx, model.StreamRequest{Type: "ping"})
}

// RequestProcesses asks for the top processes by CPU; the answer arrives
// through Next as a "processes" payload.
func (s *StreamClient) RequestProcesses(ctx context.Context) error {
	return s.send(ctx, model.StreamRequest{Type: "get_processes"})
}

// Next blocks for the next server message. Data holds the raw JSON; use
// DecodeData to unpack it.
func (s *StreamClient) Next(ctx context.Context) (model.StreamPayload, error) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return model.StreamPayload{}, ctx.Err()
			}
			return model.StreamPayload{}, Classify(err)
		}
		if typ != websocket.MessageText {
			continue
		}
		var frame struct {
			Type      model.PayloadType `json:"type"`
			Timestamp time.Time         `json:"timestamp"`
			Data      json.RawMessage   `json:"data"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return model.StreamPayload{}, Classify(err)
		}
		return model.StreamPayload{Type: frame.Type, Timestamp: frame.Timestamp, Data: frame.Data}, nil
	}
}

func (s *StreamClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingCancel != nil {
		s.pingCancel()
		s.pingCancel = nil
	}
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(websocket.StatusNormalClosure, "client closing")
	s.conn = nil
	return err
}

// DecodeData unpacks a payload's data into v.
func DecodeData(p model.StreamPayload, v any) error {
	raw, ok := p.Data.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(p.Data); err != nil {
			return &ParseError{newBase("re-encode payload", err)}
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ParseError{newBase("decode "+string(p.Type)+" payload", err)}
	}
	return nil
}

func (s *StreamClient) send(ctx context.Context, req model.StreamRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return &ParseError{newBase("encode stream request", err)}
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return &NetworkError{newBase("stream closed", nil)}
	}
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, raw); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return Classify(err)
	}
	return nil
}

func (s *StreamClient) startPingLoop(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.pingCancel = cancel
	go func(conn *websocket.Conn) {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
				if err := conn.Ping(pingCtx); err != nil && ctx.Err() == nil {
					s.logger.Debug("stream ping failed", "error", err)
				}
				pingCancel()
			}
		}
	}(s.conn)
}

func streamURL(base, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path += "/ws/stream"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
