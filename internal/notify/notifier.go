package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"syslink-agent/internal/model"
	"syslink-agent/internal/observability/metrics"
)

// Notifier delivers a raised alert to one destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, a model.Alert) error
}

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, a model.Alert) error {
	n.logger.Info("alert dispatched",
		"alert_id", a.ID,
		"type", a.Type,
		"severity", a.Severity,
		"metric", a.MetricName,
		"value", a.CurrentValue,
		"threshold", a.ThresholdValue,
	)
	return nil
}

type AlertStore interface {
	SaveAlert(ctx context.Context, a model.Alert) error
}

// StoreNotifier persists alerts to the alerts table.
type StoreNotifier struct {
	store AlertStore
}

func NewStoreNotifier(store AlertStore) *StoreNotifier {
	return &StoreNotifier{store: store}
}

func (n *StoreNotifier) Name() string { return "store" }

func (n *StoreNotifier) Notify(ctx context.Context, a model.Alert) error {
	return n.store.SaveAlert(ctx, a)
}

type Publisher interface {
	Publish(ctx context.Context, typ model.PayloadType, data any) error
}

// StreamNotifier pushes alerts to websocket clients subscribed to "alerts".
type StreamNotifier struct {
	publisher Publisher
}

func NewStreamNotifier(p Publisher) *StreamNotifier {
	return &StreamNotifier{publisher: p}
}

func (n *StreamNotifier) Name() string { return "stream" }

func (n *StreamNotifier) Notify(ctx context.Context, a model.Alert) error {
	return n.publisher.Publish(ctx, model.PayloadAlert, a)
}

// Multi calls every notifier and joins their errors. One failing destination
// does not prevent delivery to the rest.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Notify(ctx context.Context, a model.Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		err := n.Notify(ctx, a)
		metrics.ObserveNotify(n.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
