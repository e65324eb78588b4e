package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"syslink-agent/internal/config"
	"syslink-agent/internal/model"
)

const defaultTimeout = 15 * time.Second

// Client calls the agent REST API with a bearer token.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.HTTPClient = h
		}
	}
}

// WithTLSConfig is used for agents serving a self-signed certificate.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.HTTPClient = &http.Client{
			Timeout:   defaultTimeout,
			Transport: &http.Transport{TLSClientConfig: cfg},
		}
	}
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Checks    map[string]any `json:"checks,omitempty"`
}

func (c *Client) Status(ctx context.Context) (model.SystemMetrics, error) {
	var out model.SystemMetrics
	return out, c.get(ctx, "/api/status", nil, &out)
}

func (c *Client) Minimal(ctx context.Context) (model.MinimalMetrics, error) {
	var out model.MinimalMetrics
	return out, c.get(ctx, "/api/minimal", nil, &out)
}

func (c *Client) Info(ctx context.Context) (model.SystemInfo, error) {
	var out model.SystemInfo
	return out, c.get(ctx, "/api/info", nil, &out)
}

func (c *Client) Processes(ctx context.Context, opts model.ProcessQueryOptions) (model.ProcessListResponse, error) {
	q := url.Values{}
	if opts.SortBy != "" {
		q.Set("sortBy", string(opts.SortBy))
	}
	q.Set("sortDesc", strconv.FormatBool(opts.SortDescending))
	if opts.Top > 0 {
		q.Set("top", strconv.Itoa(opts.Top))
	}
	if opts.SearchTerm != "" {
		q.Set("search", opts.SearchTerm)
	}
	if opts.IncludeSystemProcesses {
		q.Set("includeSystem", "true")
	}
	var out model.ProcessListResponse
	return out, c.get(ctx, "/api/processes", q, &out)
}

func (c *Client) Process(ctx context.Context, pid int32) (model.ProcessInfo, error) {
	var out model.ProcessInfo
	return out, c.get(ctx, fmt.Sprintf("/api/processes/%d", pid), nil, &out)
}

func (c *Client) TopByCPU(ctx context.Context, count int) ([]model.ProcessInfo, error) {
	var out []model.ProcessInfo
	return out, c.get(ctx, "/api/processes/top/cpu", url.Values{"count": {strconv.Itoa(count)}}, &out)
}

func (c *Client) TopByMemory(ctx context.Context, count int) ([]model.ProcessInfo, error) {
	var out []model.ProcessInfo
	return out, c.get(ctx, "/api/processes/top/memory", url.Values{"count": {strconv.Itoa(count)}}, &out)
}

func (c *Client) MetricTypes(ctx context.Context) ([]string, error) {
	var out []string
	return out, c.get(ctx, "/api/history", nil, &out)
}

func (c *Client) History(ctx context.Context, metric, period string, maxPoints int, agg model.Aggregation) (model.HistoryResponse, error) {
	q := url.Values{}
	if period != "" {
		q.Set("period", period)
	}
	if maxPoints > 0 {
		q.Set("maxPoints", strconv.Itoa(maxPoints))
	}
	if agg != "" {
		q.Set("aggregation", string(agg))
	}
	var out model.HistoryResponse
	return out, c.get(ctx, "/api/history/"+url.PathEscape(metric), q, &out)
}

func (c *Client) Pair(ctx context.Context, req model.PairRequest) (model.PairResponse, error) {
	var out model.PairResponse
	return out, c.do(ctx, http.MethodPost, "/api/auth/pair", nil, req, &out)
}

// Validate reports whether the client's token is accepted.
func (c *Client) Validate(ctx context.Context) (bool, error) {
	err := c.get(ctx, "/api/auth/validate", nil, nil)
	if err == nil {
		return true, nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false, nil
	}
	return false, err
}

func (c *Client) Devices(ctx context.Context) ([]model.PairedDevice, error) {
	var out []model.PairedDevice
	return out, c.get(ctx, "/api/auth/devices", nil, &out)
}

func (c *Client) Revoke(ctx context.Context, deviceID string) error {
	return c.do(ctx, http.MethodDelete, "/api/auth/devices/"+url.PathEscape(deviceID), nil, nil, nil)
}

func (c *Client) PairingCode(ctx context.Context) (model.PairingCodeResponse, error) {
	var out model.PairingCodeResponse
	return out, c.get(ctx, "/api/auth/pairing-code", nil, &out)
}

func (c *Client) Config(ctx context.Context) (config.AgentConfig, error) {
	var out config.AgentConfig
	return out, c.get(ctx, "/api/config", nil, &out)
}

func (c *Client) Alerts(ctx context.Context, count int) ([]model.Alert, error) {
	var out []model.Alert
	return out, c.get(ctx, "/api/alerts", url.Values{"count": {strconv.Itoa(count)}}, &out)
}

func (c *Client) AcknowledgeAlert(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/alerts/"+url.PathEscape(id)+"/acknowledge", nil, nil, nil)
}

func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	return out, c.get(ctx, "/health", nil, &out)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, q, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return &UnknownError{newBase("build request", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return Classify(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return Classify(err)
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		return statusError(resp.StatusCode, e.Error)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return Classify(err)
	}
	return nil
}
