package notify

import (
	"context"
	"log/slog"
	"time"

	"syslink-agent/internal/model"
)

const defaultNotifyTimeout = 10 * time.Second

// Dispatcher drains the alert channel into a Notifier.
type Dispatcher struct {
	logger   *slog.Logger
	alerts   <-chan model.Alert
	notifier Notifier
	timeout  time.Duration
}

func NewDispatcher(alerts <-chan model.Alert, notifier Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.With("component", "notify"),
		alerts:   alerts,
		notifier: notifier,
		timeout:  defaultNotifyTimeout,
	}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a, ok := <-d.alerts:
			if !ok {
				return nil
			}
			d.dispatch(ctx, a)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, a model.Alert) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := d.notifier.Notify(nctx, a); err != nil {
		d.logger.Error("alert notification failed", "alert_id", a.ID, "type", a.Type, "error", err)
	}
}
