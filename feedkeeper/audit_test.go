package feedkeeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/feedkeeper/audit"
	"github.com/hazyhaar/feedkeeper/dbopen"
	"github.com/hazyhaar/feedkeeper/idgen"
)

func newAuditedService(t *testing.T) *Service {
	t.Helper()
	db := dbopen.OpenMemory(t)
	auditLog := audit.NewSQLiteLogger(db, audit.WithIDGenerator(idgen.Sequence("aud-")),
		audit.WithClock(func() time.Time { return t0 }))
	require.NoError(t, auditLog.Init())
	svc, err := New(db, Config{}, nil,
		WithURLValidator(noopValidator),
		WithClock(func() time.Time { return t0 }),
		WithAudit(auditLog))
	require.NoError(t, err)
	return svc
}

func TestAudit_RunsAndTools(t *testing.T) {
	srv, _ := feedServer(t)
	svc := newAuditedService(t)
	ctx := context.Background()

	_, _, err := svc.AddFeed(ctx, srv.URL+"/feed", "")
	require.NoError(t, err)
	_, err = svc.Sync(ctx, SyncOptions{})
	require.NoError(t, err)
	_, err = svc.Cleanup(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidInput)

	session := mcpSession(t, svc)
	_, isErr := callTool(t, session, "feedkeeper_stats", nil)
	require.False(t, isErr)

	syncs, err := svc.History(ctx, "sync", 0)
	require.NoError(t, err)
	require.Len(t, syncs, 1)
	assert.Equal(t, audit.StatusSuccess, syncs[0].Status)
	assert.Contains(t, syncs[0].Result, "SYNC_OK sources_checked=1 ")
	assert.NotContains(t, syncs[0].Result, "\n")

	cleanups, err := svc.History(ctx, "cleanup", 0)
	require.NoError(t, err)
	require.Len(t, cleanups, 1)
	assert.Equal(t, audit.StatusError, cleanups[0].Status)

	tools, err := svc.History(ctx, "feedkeeper_stats", 0)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "mcp", tools[0].Transport)

	all, err := svc.History(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestAudit_HistoryWithoutLogger(t *testing.T) {
	env := newService(t, Config{})
	_, err := env.svc.History(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
