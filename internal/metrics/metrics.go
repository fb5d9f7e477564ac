// Package metrics turns event bus traffic into OpenTelemetry instruments.
// Without an installed meter provider every instrument is a no-op.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"focusbot/internal/eventbus"
)

const meterName = "focusbot"

type Recorder struct {
	timers      metric.Int64Counter
	ticks       metric.Int64Counter
	active      metric.Int64Gauge
	editFailed  metric.Int64Counter
	jobRuns     metric.Int64Counter
	jobDuration metric.Float64Histogram
	spent       metric.Int64Histogram
}

// New registers the instruments on mp, or on the global provider when mp
// is nil.
func New(mp metric.MeterProvider) (*Recorder, error) {
	var meter metric.Meter
	if mp == nil {
		meter = otel.Meter(meterName)
	} else {
		meter = mp.Meter(meterName)
	}
	r := &Recorder{}
	var err error

	r.timers, err = meter.Int64Counter("focusbot.timer.transitions",
		metric.WithDescription("Timer state transitions by kind"))
	if err != nil {
		return nil, err
	}
	r.ticks, err = meter.Int64Counter("focusbot.reconcile.ticks",
		metric.WithDescription("Reconciliation ticks"))
	if err != nil {
		return nil, err
	}
	r.active, err = meter.Int64Gauge("focusbot.timer.active",
		metric.WithDescription("Active timers seen by the last tick"))
	if err != nil {
		return nil, err
	}
	r.editFailed, err = meter.Int64Counter("focusbot.notify.edit_failures",
		metric.WithDescription("Progress message edits that failed"))
	if err != nil {
		return nil, err
	}
	r.jobRuns, err = meter.Int64Counter("focusbot.job.runs",
		metric.WithDescription("Scheduler job executions"))
	if err != nil {
		return nil, err
	}
	r.jobDuration, err = meter.Float64Histogram("focusbot.job.duration_seconds",
		metric.WithDescription("Scheduler job duration in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	r.spent, err = meter.Int64Histogram("focusbot.task.spent_seconds",
		metric.WithDescription("Spent seconds of completed tasks"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Run records events until ctx is done or the channel is closed.
func (r *Recorder) Run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			r.Record(ctx, e)
		}
	}
}

func (r *Recorder) Record(ctx context.Context, e eventbus.Event) {
	switch e.Type {
	case eventbus.TimerStarted, eventbus.TimerPaused, eventbus.TimerExtended:
		r.timers.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(e.Type))))
	case eventbus.TimerCompleted:
		r.timers.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(e.Type))))
		r.spent.Record(ctx, e.Seconds)
	case eventbus.TimerTick:
		r.ticks.Add(ctx, 1)
		r.active.Record(ctx, e.Seconds)
	case eventbus.EditFailed:
		r.editFailed.Add(ctx, 1)
	case eventbus.JobRun:
		attrs := metric.WithAttributes(attribute.String("job", e.Name))
		r.jobRuns.Add(ctx, 1, attrs)
		r.jobDuration.Record(ctx, float64(e.Seconds), attrs)
	}
}
