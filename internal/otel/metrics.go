package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the releasekit instruments. A nil *Metrics records nothing.
type Metrics struct {
	queueOps    metric.Int64Counter
	resolutions metric.Int64Counter
	tagFetches  metric.Int64Counter
	queueDepth  metric.Int64ObservableGauge

	mu     sync.Mutex
	depths map[string]int64
}

// NewMetrics creates the instruments on m.
func NewMetrics(m metric.Meter) (*Metrics, error) {
	var (
		out = &Metrics{depths: make(map[string]int64)}
		err error
	)
	out.queueOps, err = m.Int64Counter("releasekit_queue_operations_total", metric.WithDescription("Queue operations (enqueue, clear, status) by result"))
	if err != nil {
		return nil, err
	}
	out.resolutions, err = m.Int64Counter("releasekit_version_resolutions_total", metric.WithDescription("Resolved release versions by channel and policy rule"))
	if err != nil {
		return nil, err
	}
	out.tagFetches, err = m.Int64Counter("releasekit_tag_fetch_attempts_total", metric.WithDescription("git fetch --tags attempts by result"))
	if err != nil {
		return nil, err
	}
	out.queueDepth, err = m.Int64ObservableGauge("releasekit_queue_depth", metric.WithDescription("Pending entries in the release queue"))
	if err != nil {
		return nil, err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		out.mu.Lock()
		defer out.mu.Unlock()
		for branch, n := range out.depths {
			o.ObserveInt64(out.queueDepth, n, metric.WithAttributes(AttrBranch.String(branch)))
		}
		return nil
	}, out.queueDepth)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordQueueOp records a queue operation (enqueue, clear, status) and its result.
func (m *Metrics) RecordQueueOp(ctx context.Context, op, branch, result string) {
	if m == nil {
		return
	}
	m.queueOps.Add(ctx, 1, metric.WithAttributes(
		AttrOperation.String(op),
		AttrBranch.String(branch),
		AttrResult.String(result),
	))
}

// RecordResolution records one resolved version.
func (m *Metrics) RecordResolution(ctx context.Context, channel, rule string) {
	if m == nil {
		return
	}
	m.resolutions.Add(ctx, 1, metric.WithAttributes(AttrChannel.String(channel), AttrRule.String(rule)))
}

// RecordTagFetch records one tag fetch attempt.
func (m *Metrics) RecordTagFetch(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.tagFetches.Add(ctx, 1, metric.WithAttributes(AttrResult.String(result)))
}

// SetQueueDepth sets the depth reported for branch.
func (m *Metrics) SetQueueDepth(branch string, n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.depths[branch] = int64(n)
	m.mu.Unlock()
}
