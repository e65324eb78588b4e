package hardware

import (
	"context"
	"sync"
	"time"

	"syslink-agent/internal/model"
)

const DefaultCacheMaxAge = 500 * time.Millisecond

// CachedSource shares one snapshot between concurrent readers for maxAge.
type CachedSource struct {
	base   Source
	maxAge time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last model.SystemMetrics
	at   time.Time
	ok   bool
}

func NewCachedSource(base Source, maxAge time.Duration) *CachedSource {
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	return &CachedSource{base: base, maxAge: maxAge, now: time.Now}
}

func (c *CachedSource) GetMetrics(ctx context.Context) (model.SystemMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.ok && now.Sub(c.at) < c.maxAge {
		return c.last, nil
	}
	m, err := c.base.GetMetrics(ctx)
	if err != nil {
		return model.SystemMetrics{}, err
	}
	c.last, c.at, c.ok = m, now, true
	return m, nil
}

func (c *CachedSource) GetMinimal(ctx context.Context) (model.MinimalMetrics, error) {
	m, err := c.GetMetrics(ctx)
	if err != nil {
		return model.MinimalMetrics{}, err
	}
	return m.Minimal(), nil
}

func (c *CachedSource) GetSystemInfo(ctx context.Context) (model.SystemInfo, error) {
	return c.base.GetSystemInfo(ctx)
}
