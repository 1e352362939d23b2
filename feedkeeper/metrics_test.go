package feedkeeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/feedkeeper/dbopen"
	"github.com/hazyhaar/feedkeeper/observability"
)

func TestMetrics_SyncRecordsRun(t *testing.T) {
	srv, _ := feedServer(t)
	db := dbopen.OpenMemory(t)
	mm := observability.NewMetricsManager(db)
	require.NoError(t, mm.Init())
	svc, err := New(db, Config{}, nil,
		WithURLValidator(noopValidator),
		WithClock(func() time.Time { return t0 }),
		WithMetrics(mm))
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = svc.AddFeed(ctx, srv.URL+"/feed", "")
	require.NoError(t, err)
	rep, err := svc.Sync(ctx, SyncOptions{})
	require.NoError(t, err)

	ms, err := mm.Query(ctx, observability.MetricSyncSourcesChecked, nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, 1.0, ms[0].Value)
	assert.Equal(t, rep.RunID, ms[0].Labels["run_id"])

	durations, err := mm.Query(ctx, observability.MetricSyncDurationMs, nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, durations, 1)
}
