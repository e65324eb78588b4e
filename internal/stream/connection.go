package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"syslink-agent/internal/model"
)

const processesPerRequest = 10

type connection struct {
	id          string
	remote      string
	ws          *websocket.Conn
	connectedAt time.Time

	mu   sync.Mutex
	subs map[string]struct{}
}

func newConnection(id, remote string, ws *websocket.Conn, at time.Time) *connection {
	return &connection{
		id:          id,
		remote:      remote,
		ws:          ws,
		connectedAt: at,
		subs:        map[string]struct{}{model.ChannelMetrics: {}},
	}
}

func (c *connection) subscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[channel] = struct{}{}
}

func (c *connection) unsubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, channel)
}

func (c *connection) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[channel]
	return ok
}

func (c *connection) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

func (c *connection) write(ctx context.Context, payload []byte, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.ws.Write(wctx, websocket.MessageText, payload)
}

// receive handles client messages until the socket closes.
func (b *Broadcaster) receive(ctx context.Context, c *connection) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				b.logger.Debug("websocket client closed", "conn_id", c.id, "status", status)
			} else {
				b.logger.Debug("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var req model.StreamRequest
		if err := json.Unmarshal(data, &req); err != nil {
			b.logger.Warn("malformed stream message", "conn_id", c.id, "error", err)
			continue
		}
		b.handleRequest(ctx, c, req)
	}
}

func (b *Broadcaster) handleRequest(ctx context.Context, c *connection, req model.StreamRequest) {
	channel := strings.ToLower(strings.TrimSpace(req.Channel))
	if channel == "" {
		channel = model.ChannelMetrics
	}

	switch strings.ToLower(req.Type) {
	case "subscribe":
		c.subscribe(channel)
		b.logger.Debug("stream subscription added", "conn_id", c.id, "channel", channel, "subscriptions", c.subscriptions())
	case "unsubscribe":
		c.unsubscribe(channel)
		b.logger.Debug("stream subscription removed", "conn_id", c.id, "channel", channel, "subscriptions", c.subscriptions())
	case "ping":
		b.sendTo(ctx, c, model.PayloadPong, nil)
	case "get_processes":
		procs := []model.ProcessInfo{}
		if b.processes != nil {
			top, err := b.processes.TopByCPU(ctx, processesPerRequest)
			if err != nil {
				b.logger.Error("process list for stream failed", "conn_id", c.id, "error", err)
				return
			}
			procs = top
		}
		b.sendTo(ctx, c, model.PayloadProcesses, procs)
	default:
		b.logger.Debug("unknown stream message", "conn_id", c.id, "type", req.Type)
	}
}

func (b *Broadcaster) sendTo(ctx context.Context, c *connection, typ model.PayloadType, data any) {
	raw, err := EncodePayload(typ, b.now(), data)
	if err != nil {
		b.logger.Error("encode stream payload failed", "type", typ, "error", err)
		return
	}
	err = c.write(ctx, raw, b.writeTimeout)
	observeSend(typ, err)
	if err != nil {
		b.logger.Warn("stream reply failed", "conn_id", c.id, "type", typ, "error", err)
	}
}
