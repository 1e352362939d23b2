package observability

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/feedkeeper/dbopen"
	_ "modernc.org/sqlite"
)

func newMetrics(t *testing.T) *MetricsManager {
	t.Helper()
	mm := NewMetricsManager(dbopen.OpenMemory(t))
	if err := mm.Init(); err != nil {
		t.Fatal(err)
	}
	return mm
}

func TestMetricsManager_RecordAndQuery(t *testing.T) {
	// WHAT: a batch is written in one go and read back newest first.
	mm := newMetrics(t)
	ctx := context.Background()
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	err := mm.RecordBatch(ctx, []*Metric{
		{Name: MetricSyncNew, Timestamp: at, Value: 3, Unit: UnitCount, Labels: map[string]string{"run_id": "r1"}},
		{Name: MetricSyncDurationMs, Timestamp: at, Value: 120, Unit: UnitMilliseconds},
		{Name: MetricSyncNew, Timestamp: at.Add(time.Hour), Value: 1, Unit: UnitCount},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := mm.Query(ctx, MetricSyncNew, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("sync_new rows: got %d, want 2", len(got))
	}
	if got[0].Value != 1 || !got[0].Timestamp.Equal(at.Add(time.Hour)) {
		t.Errorf("newest first: got %+v", got[0])
	}
	if got[1].Labels["run_id"] != "r1" {
		t.Errorf("labels: got %v", got[1].Labels)
	}

	end := at
	upTo, err := mm.Query(ctx, "", nil, &end, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(upTo) != 2 {
		t.Errorf("range: got %d rows, want 2", len(upTo))
	}
}

func TestMetricsManager_EmptyBatch(t *testing.T) {
	mm := newMetrics(t)
	if err := mm.RecordBatch(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}

func TestMetricsManager_NoTable(t *testing.T) {
	// WHY: a missing table must surface as an error, not a silent drop.
	mm := NewMetricsManager(dbopen.OpenMemory(t))
	err := mm.RecordBatch(context.Background(), []*Metric{{Name: "x", Timestamp: time.Now()}})
	if err == nil {
		t.Fatal("expected error without Init")
	}
}
