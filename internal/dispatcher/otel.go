package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/rlpredict/rlpredict/internal/dispatcher"

// instruments are created on the global meter provider, which is a no-op
// until the otel package installs one.
type instruments struct {
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	failed    metric.Int64Counter
	dropped   metric.Int64Counter
	duration  metric.Float64Histogram
}

func newInstruments(queues func() map[string]int) (*instruments, error) {
	m := otel.Meter(instrumentationName)
	in := &instruments{}

	var err error
	in.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		for cmd, n := range queues() {
			o.ObserveInt64(in.queueSize, int64(n), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, in.queueSize)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	if in.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Total events handled")); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if in.failed, err = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Total events whose handler returned an error")); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	if in.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if in.duration, err = m.Float64Histogram("dispatcher.handler.duration",
		metric.WithDescription("Handler execution time"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	return in, nil
}

// observe records one handler execution.
func (in *instruments) observe(command string, took time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("command", command))
	in.processed.Add(ctx, 1, attrs)
	in.duration.Record(ctx, float64(took.Microseconds())/1000, attrs)
	if err != nil {
		in.failed.Add(ctx, 1, attrs)
	}
}

func (in *instruments) drop(command string) {
	in.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", command)))
}
