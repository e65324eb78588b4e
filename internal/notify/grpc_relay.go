package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"

	"syslink-agent/internal/config"
	"syslink-agent/internal/model"
)

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// AlertFrame is one message on the upstream alert stream.
type AlertFrame struct {
	ServerID      string      `json:"server_id"`
	Hostname      string      `json:"hostname"`
	TimestampUnix int64       `json:"timestamp_unix"`
	Alert         model.Alert `json:"alert"`
}

type RelayConfig struct {
	Addr     string
	Method   string
	Token    string
	TLS      *tls.Config
	ServerID string
	Hostname string
}

// GRPCRelay client-streams alerts to an upstream collector with a JSON codec.
// The stream is opened lazily and reopened once when a send fails.
type GRPCRelay struct {
	mu sync.Mutex

	logger      *slog.Logger
	cfg         RelayConfig
	conn        *grpc.ClientConn
	stream      grpc.ClientStream
	cancel      context.CancelFunc
	dialTimeout time.Duration
	connected   atomic.Bool
}

func NewGRPCRelay(cfg RelayConfig, logger *slog.Logger) *GRPCRelay {
	encoding.RegisterCodec(jsonCodec{})
	return &GRPCRelay{
		logger:      logger.With("component", "relay"),
		cfg:         cfg,
		dialTimeout: 8 * time.Second,
	}
}

// NewRelayFromConfig returns nil when no relay address is configured.
func NewRelayFromConfig(cfg config.Config, serverID string, logger *slog.Logger) *GRPCRelay {
	if cfg.RelayGRPCAddr == "" {
		return nil
	}
	return NewGRPCRelay(RelayConfig{
		Addr:     cfg.RelayGRPCAddr,
		Method:   cfg.RelayGRPCMethod,
		Token:    cfg.RelayToken,
		TLS:      cfg.RelayTLSConfig(),
		ServerID: serverID,
		Hostname: cfg.Hostname,
	}, logger)
}

func (r *GRPCRelay) Name() string { return "grpc_relay" }

// Connected reports whether the last send succeeded.
func (r *GRPCRelay) Connected() bool {
	return r.connected.Load()
}

func (r *GRPCRelay) Notify(ctx context.Context, a model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame := AlertFrame{
		ServerID:      r.cfg.ServerID,
		Hostname:      r.cfg.Hostname,
		TimestampUnix: a.Timestamp.Unix(),
		Alert:         a,
	}
	if err := r.sendLocked(ctx, frame); err != nil {
		r.logger.Warn("relay send failed, reopening stream", "error", err)
		r.resetStreamLocked()
		if err2 := r.sendLocked(ctx, frame); err2 != nil {
			r.connected.Store(false)
			return fmt.Errorf("send alert frame: %w", err2)
		}
	}
	r.connected.Store(true)
	return nil
}

func (r *GRPCRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetStreamLocked()
	r.connected.Store(false)
	if r.conn != nil {
		err := r.conn.Close()
		r.conn = nil
		return err
	}
	return nil
}

func (r *GRPCRelay) sendLocked(ctx context.Context, frame AlertFrame) error {
	if err := r.ensureConnLocked(ctx); err != nil {
		return err
	}
	if r.stream == nil {
		if err := r.openStreamLocked(); err != nil {
			return err
		}
	}
	return r.stream.SendMsg(&frame)
}

func (r *GRPCRelay) ensureConnLocked(ctx context.Context) error {
	if r.conn != nil {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(context.Background(), r.dialTimeout)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		dialCtx, cancel = context.WithDeadline(context.Background(), dl)
		defer cancel()
	}

	var creds credentials.TransportCredentials
	if r.cfg.TLS != nil {
		creds = credentials.NewTLS(r.cfg.TLS)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.DialContext(
		dialCtx,
		r.cfg.Addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return fmt.Errorf("grpc dial %s: %w", r.cfg.Addr, err)
	}
	r.conn = conn
	r.logger.Info("alert relay connected", "addr", r.cfg.Addr)
	return nil
}

// openStreamLocked opens the long-lived client stream. Its context is not
// tied to any single Notify call.
func (r *GRPCRelay) openStreamLocked() error {
	if r.conn == nil {
		return fmt.Errorf("grpc conn is nil")
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	if r.cfg.Token != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, "authorization", "Bearer "+r.cfg.Token)
	}
	s, err := r.conn.NewStream(streamCtx, &grpc.StreamDesc{ClientStreams: true}, r.cfg.Method)
	if err != nil {
		cancel()
		return fmt.Errorf("open alert stream: %w", err)
	}
	r.stream, r.cancel = s, cancel
	return nil
}

func (r *GRPCRelay) resetStreamLocked() {
	if r.stream != nil {
		_ = r.stream.CloseSend()
		r.stream = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
