// Package metrics centralizes the metric names emitted by the dispatcher.
package metrics

import (
	"time"

	"github.com/publora/publora/internal/observability/statsd"
)

const (
	metricCycle          = "dispatch.cycle"
	metricCycleDuration  = "dispatch.cycle.duration"
	metricCycleClaimed   = "dispatch.cycle.claimed"
	metricPublishOutcome = "dispatch.publish"
)

// DispatchCycle captures one cycle's measurements.
type DispatchCycle struct {
	Fetched  int
	Claimed  int
	Duration time.Duration
	Err      error
}

// EmitDispatchCycle emits the per-cycle counters and timing. A nil sink is a
// no-op.
func EmitDispatchCycle(sink statsd.Sink, cycle DispatchCycle) {
	if sink == nil {
		return
	}
	result := "success"
	if cycle.Err != nil {
		result = "error"
	}
	tags := map[string]string{"result": result}
	sink.Count(metricCycle, 1, tags)
	sink.Count(metricCycleClaimed, int64(cycle.Claimed), tags)
	sink.Timing(metricCycleDuration, cycle.Duration, tags)
}

// EmitPublishOutcome emits one per-job publish outcome tagged by platform.
func EmitPublishOutcome(sink statsd.Sink, platform string, ok bool) {
	if sink == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	sink.Count(metricPublishOutcome, 1, map[string]string{
		"platform": platform,
		"result":   result,
	})
}
