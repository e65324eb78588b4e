package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"syslink-agent/internal/config"
	"syslink-agent/internal/model"
	"syslink-agent/internal/observability/metrics"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultErrorBackoff = time.Second
)

type MetricsSource interface {
	GetMetrics(ctx context.Context) (model.SystemMetrics, error)
}

type ProcessSource interface {
	TopByCPU(ctx context.Context, n int) ([]model.ProcessInfo, error)
}

type SettingsSource interface {
	Get() config.AgentConfig
}

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) bool
}

type Option func(*Broadcaster)

func WithWriteTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.writeTimeout = d
		}
	}
}

func WithErrorBackoff(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.errorBackoff = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) {
		if now != nil {
			b.now = now
		}
	}
}

// WithConnectionObserver is called with the connection count after every change.
func WithConnectionObserver(fn func(int)) Option {
	return func(b *Broadcaster) { b.observer = fn }
}

// Broadcaster accepts websocket clients on /ws/stream and pushes metrics
// snapshots to them. The broadcast loop only runs while at least one client
// is connected.
type Broadcaster struct {
	logger       *slog.Logger
	source       MetricsSource
	processes    ProcessSource
	settings     SettingsSource
	auth         TokenValidator
	writeTimeout time.Duration
	errorBackoff time.Duration
	now          func() time.Time
	observer     func(int)

	mu         sync.Mutex
	conns      map[string]*connection
	loopCancel context.CancelFunc
	closed     bool
}

func NewBroadcaster(source MetricsSource, processes ProcessSource, settings SettingsSource, auth TokenValidator, logger *slog.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		logger:       logger.With("component", "stream"),
		source:       source,
		processes:    processes,
		settings:     settings,
		auth:         auth,
		writeTimeout: defaultWriteTimeout,
		errorBackoff: defaultErrorBackoff,
		now:          time.Now,
		conns:        make(map[string]*connection),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.settings.Get().Security.RequireStreamAuthentication {
		ok := b.auth != nil && b.auth.ValidateToken(r.Context(), r.URL.Query().Get("token"))
		metrics.ObserveAuth("stream", ok)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		b.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(1 << 20)

	c := newConnection(uuid.NewString(), r.RemoteAddr, ws, b.now().UTC())
	if !b.add(c) {
		_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer b.remove(c)

	b.receive(r.Context(), c)
}

// ConnectionCount reports the number of open websocket clients.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Publish sends a payload to every client subscribed to the payload's channel.
func (b *Broadcaster) Publish(ctx context.Context, typ model.PayloadType, data any) error {
	raw, err := EncodePayload(typ, b.now(), data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", typ, err)
	}
	targets := b.targets(channelFor(typ), true)
	return b.fanOut(ctx, typ, raw, targets)
}

// Close stops the broadcast loop and disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	if b.loopCancel != nil {
		b.loopCancel()
		b.loopCancel = nil
	}
	conns := make([]*connection, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (b *Broadcaster) add(c *connection) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.conns[c.id] = c
	n := len(b.conns)
	if b.loopCancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		b.loopCancel = cancel
		go b.loop(ctx)
		b.logger.Info("broadcast loop started")
	}
	b.mu.Unlock()

	b.logger.Info("websocket client connected", "conn_id", c.id, "remote", c.remote, "connections", n)
	b.countChanged(n)
	return true
}

func (b *Broadcaster) remove(c *connection) {
	b.mu.Lock()
	delete(b.conns, c.id)
	n := len(b.conns)
	if n == 0 && b.loopCancel != nil {
		b.loopCancel()
		b.loopCancel = nil
		b.logger.Info("broadcast loop stopped")
	}
	b.mu.Unlock()

	_ = c.ws.Close(websocket.StatusNormalClosure, "")
	b.logger.Info("websocket client disconnected", "conn_id", c.id, "connections", n,
		"connected_for", b.now().Sub(c.connectedAt).Round(time.Second))
	b.countChanged(n)
}

func (b *Broadcaster) countChanged(n int) {
	metrics.SetWebSocketConnections(n)
	if b.observer != nil {
		b.observer(n)
	}
}

func (b *Broadcaster) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		interval := b.settings.Get().Monitoring.UpdateInterval()
		if err := b.broadcastOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("metrics broadcast failed", "error", err)
			sleepWithContext(ctx, b.errorBackoff)
			continue
		}
		sleepWithContext(ctx, interval)
	}
}

func (b *Broadcaster) broadcastOnce(ctx context.Context) error {
	m, err := b.source.GetMetrics(ctx)
	if err != nil {
		return fmt.Errorf("read metrics: %w", err)
	}
	raw, err := EncodePayload(model.PayloadMetrics, b.now(), m)
	if err != nil {
		return fmt.Errorf("encode metrics payload: %w", err)
	}
	honor := b.settings.Get().Monitoring.HonorSubscriptions
	targets := b.targets(model.ChannelMetrics, honor)
	if err := b.fanOut(ctx, model.PayloadMetrics, raw, targets); err != nil {
		b.logger.Debug("metrics delivery incomplete", "error", err)
	}
	return nil
}

// targets snapshots the connection set so no lock is held during network I/O.
func (b *Broadcaster) targets(channel string, filter bool) []*connection {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*connection, 0, len(b.conns))
	for _, c := range b.conns {
		if filter && !c.subscribed(channel) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// fanOut writes to every target concurrently. A failed client is closed so
// its receive loop removes it; the others are unaffected.
func (b *Broadcaster) fanOut(ctx context.Context, typ model.PayloadType, raw []byte, targets []*connection) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, c := range targets {
		c := c
		g.Go(func() error {
			err := c.write(ctx, raw, b.writeTimeout)
			observeSend(typ, err)
			if err != nil {
				b.logger.Warn("websocket send failed", "conn_id", c.id, "type", typ, "error", err)
				_ = c.ws.Close(websocket.StatusInternalError, "send failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("conn %s: %w", c.id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func observeSend(typ model.PayloadType, err error) {
	metrics.ObserveWebSocketSend(string(typ), err)
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
