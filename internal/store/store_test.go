package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/zapdesk/internal/campaign"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[i]
		if i < len(ts)-1 {
			i++
		}
		return t
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Migrate())
}

func TestNewCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "zapdesk.db")
	db, err := New(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())
}

func TestDraftLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewDraftRepository(setupTestDB(t).DB)
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	repo.now = fixedClock(t0, t0.Add(time.Hour))

	d := &Draft{Name: "Black Friday", Payload: json.RawMessage(`{"step":2}`)}
	require.NoError(t, repo.Save(ctx, d))
	require.NotEmpty(t, d.ID)

	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Black Friday", got.Name)
	assert.JSONEq(t, `{"step":2}`, string(got.Payload))

	d.Name = "Black Friday v2"
	d.Payload = json.RawMessage(`{"step":3}`)
	require.NoError(t, repo.Save(ctx, d))

	got, err = repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Black Friday v2", got.Name)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.True(t, got.UpdatedAt.Equal(t0.Add(time.Hour)))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Payload)

	require.NoError(t, repo.Delete(ctx, d.ID))
	_, err = repo.Get(ctx, d.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, d.ID), ErrDraftNotFound)
}

func TestDraftDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	repo := NewDraftRepository(setupTestDB(t).DB)
	old := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	repo.now = fixedClock(old, recent)

	require.NoError(t, repo.Save(ctx, &Draft{Name: "old", Payload: json.RawMessage(`{}`)}))
	require.NoError(t, repo.Save(ctx, &Draft{Name: "recent", Payload: json.RawMessage(`{}`)}))

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n, err := repo.CountOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "recent", list[0].Name)
}

func TestAuditRecordAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(setupTestDB(t).DB)
	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	repo.now = fixedClock(t0, t0.Add(time.Minute), t0.Add(2*time.Minute))

	require.NoError(t, repo.Record(ctx, "pause", "7", nil))
	require.NoError(t, repo.Record(ctx, "resume", "7", map[string]any{"result": "ok"}))
	require.NoError(t, repo.Record(ctx, "delete", "8", map[string]any{"error": "boom"}))

	all, total, err := repo.List(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "delete", all[0].Action)
	assert.Equal(t, "boom", all[0].Details["error"])
	assert.Nil(t, all[2].Details)

	byCampaign, total, err := repo.List(ctx, AuditFilter{CampaignID: "7", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, byCampaign, 1)
	assert.Equal(t, "resume", byCampaign[0].Action)

	n, err := repo.DeleteOlderThan(ctx, t0.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAuditRepositoryIsAuditor(t *testing.T) {
	var _ campaign.Auditor = (*AuditRepository)(nil)
}
