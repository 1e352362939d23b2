package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/feedkeeper/observability"
)

func (r *RunReport) metrics(at time.Time, d time.Duration) []*observability.Metric {
	labels := map[string]string{"run_id": r.RunID}
	return runMetrics(at, labels, d, observability.MetricSyncDurationMs, []countMetric{
		{observability.MetricSyncSourcesChecked, r.SourcesChecked},
		{observability.MetricSyncNotModified, r.NotModified},
		{observability.MetricSyncSourceErrors, r.SourceErrors},
		{observability.MetricSyncNew, r.New},
		{observability.MetricSyncUpdated, r.Updated},
		{observability.MetricSyncUnchanged, r.Unchanged},
		{observability.MetricSyncFailed, r.Failed},
	})
}

func (r *EnrichReport) metrics(at time.Time, d time.Duration) []*observability.Metric {
	labels := map[string]string{"run_id": r.RunID}
	return runMetrics(at, labels, d, observability.MetricEnrichDurationMs, []countMetric{
		{observability.MetricEnrichChecked, r.Checked},
		{observability.MetricEnrichReady, r.ReadyNew + r.ReadyUpdated + r.ReadyUnchanged},
		{observability.MetricEnrichFailed, r.FailedNew + r.FailedUpdated},
		{observability.MetricEnrichTransient, r.Transient},
		{observability.MetricEnrichExhausted, r.Exhausted},
		{observability.MetricEnrichSkipped, r.Skipped},
	})
}

type countMetric struct {
	name  string
	value int
}

func runMetrics(at time.Time, labels map[string]string, d time.Duration, durationName string, counts []countMetric) []*observability.Metric {
	out := make([]*observability.Metric, 0, len(counts)+1)
	for _, c := range counts {
		out = append(out, &observability.Metric{
			Name: c.name, Timestamp: at, Value: float64(c.value), Labels: labels, Unit: observability.UnitCount,
		})
	}
	return append(out, &observability.Metric{
		Name: durationName, Timestamp: at, Value: float64(d.Milliseconds()), Labels: labels, Unit: observability.UnitMilliseconds,
	})
}

// flushMetrics writes a run's datapoints. A failed write is logged only.
func flushMetrics(ctx context.Context, sink observability.MetricsSink, ms []*observability.Metric, logger *slog.Logger) {
	if sink == nil {
		return
	}
	if err := sink.RecordBatch(ctx, ms); err != nil {
		logger.Warn("metrics: record failed", "error", err)
	}
}
