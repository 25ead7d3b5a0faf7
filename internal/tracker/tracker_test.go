package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/storage"
	"github.com/ostehost/command-central-sub001/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// failingAdapter fails Save while failSave is set.
type failingAdapter struct {
	storage.Adapter
	failSave bool
}

func (f *failingAdapter) Save(ctx context.Context, repoID int64, records []models.DeletedFileRecord) (int, error) {
	if f.failSave {
		return 0, errors.New("disk full")
	}
	return f.Adapter.Save(ctx, repoID, records)
}

var start = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestTrackerWriteOnce(t *testing.T) {
	ctx := context.Background()
	tr := New(storage.NewMemoryAdapter(), utils.NewManualClock(start), nil)
	id, err := tr.EnsureRepository(ctx, "/repo", "repo")
	require.NoError(t, err)

	n, err := tr.Save(ctx, id, []models.DeletedFileRecord{{Path: "a", Order: 1, Timestamp: 1000}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = tr.Save(ctx, id, []models.DeletedFileRecord{{Path: "a", Order: 999, Timestamp: 9999}})
	require.NoError(t, err)
	assert.Zero(t, n)

	got, ok := tr.Lookup(id, "a")
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Order)
	assert.Equal(t, int64(1000), got.Timestamp)
}

func TestTrackerAssignsOrderAndTimestamp(t *testing.T) {
	ctx := context.Background()
	clock := utils.NewManualClock(start)
	tr := New(storage.NewMemoryAdapter(), clock, nil)
	id, err := tr.EnsureRepository(ctx, "/repo", "repo")
	require.NoError(t, err)

	_, err = tr.Save(ctx, id, []models.DeletedFileRecord{{Path: "a"}, {Path: "b"}, {Path: "a"}})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = tr.Save(ctx, id, []models.DeletedFileRecord{{Path: "a"}, {Path: "b"}, {Path: "c"}})
	require.NoError(t, err)

	records := tr.Records(id)
	require.Len(t, records, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{records[0].Order, records[1].Order, records[2].Order})
	assert.Equal(t, start.UnixMilli(), records[0].Timestamp)
	assert.Equal(t, start.Add(time.Minute).UnixMilli(), records[2].Timestamp)
}

func TestTrackerPersistFailureDoesNotAdvanceMemory(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.ErrorLevel)
	store := &failingAdapter{Adapter: storage.NewMemoryAdapter()}
	tr := New(store, utils.NewManualClock(start), zap.New(core))
	id, err := tr.EnsureRepository(ctx, "/repo", "repo")
	require.NoError(t, err)

	store.failSave = true
	_, err = tr.Save(ctx, id, []models.DeletedFileRecord{{Path: "a", Order: 1, Timestamp: 1}})
	require.Error(t, err)
	_, ok := tr.Lookup(id, "a")
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("failed to persist deleted files").Len())

	store.failSave = false
	n, err := tr.Save(ctx, id, []models.DeletedFileRecord{{Path: "a", Order: 1, Timestamp: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTrackerSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()
	tr := New(store, utils.NewManualClock(start), nil)
	id, err := tr.EnsureRepository(ctx, "/repo", "repo")
	require.NoError(t, err)
	_, err = tr.Save(ctx, id, []models.DeletedFileRecord{{Path: "a", Order: 7, Timestamp: 70}})
	require.NoError(t, err)

	restarted := New(store, utils.NewManualClock(start), nil)
	again, err := restarted.EnsureRepository(ctx, "/repo", "repo")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	got, ok := restarted.Lookup(id, "a")
	require.True(t, ok)
	assert.Equal(t, models.DeletedFileRecord{Path: "a", Order: 7, Timestamp: 70, IsVisible: true}, got)

	_, err = restarted.Save(ctx, id, []models.DeletedFileRecord{{Path: "b"}})
	require.NoError(t, err)
	b, _ := restarted.Lookup(id, "b")
	assert.Equal(t, int64(8), b.Order)
}

func TestTrackerStaleProjectionTakesStoredVersion(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()
	first := New(store, utils.NewManualClock(start), nil)
	second := New(store, utils.NewManualClock(start), nil)

	id, err := first.EnsureRepository(ctx, "/repo", "repo")
	require.NoError(t, err)
	_, err = second.EnsureRepository(ctx, "/repo", "repo")
	require.NoError(t, err)

	_, err = first.Save(ctx, id, []models.DeletedFileRecord{{Path: "a", Order: 1, Timestamp: 10}})
	require.NoError(t, err)
	n, err := second.Save(ctx, id, []models.DeletedFileRecord{{Path: "a", Order: 5, Timestamp: 50}})
	require.NoError(t, err)
	assert.Zero(t, n)

	got, ok := second.Lookup(id, "a")
	require.True(t, ok)
	assert.Equal(t, int64(10), got.Timestamp)
}

func TestTrackerVisibility(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()
	tr := New(store, utils.NewManualClock(start), nil)
	id, err := tr.EnsureRepository(ctx, "/repo", "repo")
	require.NoError(t, err)
	_, err = tr.Save(ctx, id, []models.DeletedFileRecord{{Path: "a"}, {Path: "b"}})
	require.NoError(t, err)

	assert.True(t, tr.SetVisibility(id, "a", false))
	assert.False(t, tr.SetVisibility(id, "missing", false))

	visible := tr.VisibleRecords(id)
	require.Len(t, visible, 1)
	assert.Equal(t, "b", visible[0].Path)

	// reload resets runtime visibility
	loaded, err := tr.Load(ctx, id)
	require.NoError(t, err)
	for _, r := range loaded {
		assert.True(t, r.IsVisible)
	}
}
