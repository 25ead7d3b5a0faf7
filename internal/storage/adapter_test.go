package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type adapterHarness struct {
	name string
	// open returns a fresh adapter and a function that simulates a process
	// restart against the same store.
	open func(t testing.TB) (Adapter, func(t testing.TB, old Adapter) Adapter)
}

func harnesses() []adapterHarness {
	return []adapterHarness{
		{
			name: "memory",
			open: func(t testing.TB) (Adapter, func(testing.TB, Adapter) Adapter) {
				return NewMemoryAdapter(), func(t testing.TB, old Adapter) Adapter {
					data, err := old.Backup(context.Background())
					require.NoError(t, err)
					require.NoError(t, old.Close())
					doc, err := DecodeDocument(data)
					require.NoError(t, err)
					return NewMemoryAdapterFromDocument(doc)
				}
			},
		},
		{
			name: "file",
			open: func(t testing.TB) (Adapter, func(testing.TB, Adapter) Adapter) {
				path := filepath.Join(t.TempDir(), models.DeletedStateFilename)
				a, err := NewFileAdapter(path)
				require.NoError(t, err)
				return a, func(t testing.TB, old Adapter) Adapter {
					require.NoError(t, old.Close())
					next, err := NewFileAdapter(path)
					require.NoError(t, err)
					return next
				}
			},
		},
		{
			name: "sqlite",
			open: func(t testing.TB) (Adapter, func(testing.TB, Adapter) Adapter) {
				path := filepath.Join(t.TempDir(), models.DeletedDBFilename)
				a, err := NewSQLiteAdapter(path)
				require.NoError(t, err)
				t.Cleanup(func() { _ = a.Close() })
				return a, func(t testing.TB, old Adapter) Adapter {
					require.NoError(t, old.Close())
					next, err := NewSQLiteAdapter(path)
					require.NoError(t, err)
					t.Cleanup(func() { _ = next.Close() })
					return next
				}
			},
		},
	}
}

func forEachAdapter(t *testing.T, fn func(t *testing.T, a Adapter, reopen func(testing.TB, Adapter) Adapter)) {
	for _, h := range harnesses() {
		t.Run(h.name, func(t *testing.T) {
			a, reopen := h.open(t)
			fn(t, a, reopen)
		})
	}
}

func TestAdapterRepositoryIDDurability(t *testing.T) {
	forEachAdapter(t, func(t *testing.T, a Adapter, reopen func(testing.TB, Adapter) Adapter) {
		ctx := context.Background()
		x, err := a.EnsureRepository(ctx, "/x", "x")
		require.NoError(t, err)
		assert.Equal(t, int64(1), x)

		again, err := a.EnsureRepository(ctx, "/x/", "x")
		require.NoError(t, err)
		assert.Equal(t, x, again)

		a = reopen(t, a)
		afterRestart, err := a.EnsureRepository(ctx, "/x", "x")
		require.NoError(t, err)
		assert.Equal(t, x, afterRestart)

		y, err := a.EnsureRepository(ctx, "/y", "y")
		require.NoError(t, err)
		assert.Equal(t, x+1, y)
	})
}

func TestAdapterWriteOnce(t *testing.T) {
	forEachAdapter(t, func(t *testing.T, a Adapter, reopen func(testing.TB, Adapter) Adapter) {
		ctx := context.Background()
		id, err := a.EnsureRepository(ctx, "/repo", "repo")
		require.NoError(t, err)

		n, err := a.Save(ctx, id, []models.DeletedFileRecord{{Path: "a", Order: 1, Timestamp: 1000}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = a.Save(ctx, id, []models.DeletedFileRecord{{Path: "a", Order: 999, Timestamp: 9999}})
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		a = reopen(t, a)
		got, err := a.Load(ctx, id)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, models.DeletedFileRecord{Path: "a", Order: 1, Timestamp: 1000, IsVisible: true}, got[0])
	})
}

func TestAdapterSaveIsIdempotent(t *testing.T) {
	forEachAdapter(t, func(t *testing.T, a Adapter, _ func(testing.TB, Adapter) Adapter) {
		ctx := context.Background()
		id, err := a.EnsureRepository(ctx, "/repo", "repo")
		require.NoError(t, err)

		snapshot := []models.DeletedFileRecord{
			{Path: "src/a.ts", Order: 1, Timestamp: 100},
			{Path: "src/b.ts", Order: 2, Timestamp: 200},
		}
		_, err = a.Save(ctx, id, snapshot)
		require.NoError(t, err)
		first, err := a.Load(ctx, id)
		require.NoError(t, err)

		n, err := a.Save(ctx, id, snapshot)
		require.NoError(t, err)
		assert.Zero(t, n)
		second, err := a.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestAdapterAssignsOrderWhenMissing(t *testing.T) {
	forEachAdapter(t, func(t *testing.T, a Adapter, _ func(testing.TB, Adapter) Adapter) {
		ctx := context.Background()
		id, err := a.EnsureRepository(ctx, "/repo", "repo")
		require.NoError(t, err)

		_, err = a.Save(ctx, id, []models.DeletedFileRecord{{Path: "a", Order: 5, Timestamp: 1}})
		require.NoError(t, err)
		_, err = a.Save(ctx, id, []models.DeletedFileRecord{{Path: "b", Timestamp: 2}})
		require.NoError(t, err)

		got, err := a.Load(ctx, id)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(6), got[1].Order)
	})
}

func TestAdapterUnknownRepository(t *testing.T) {
	forEachAdapter(t, func(t *testing.T, a Adapter, _ func(testing.TB, Adapter) Adapter) {
		ctx := context.Background()
		_, err := a.Save(ctx, 42, []models.DeletedFileRecord{{Path: "a", Order: 1}})
		assert.ErrorIs(t, err, ErrUnknownRepository)
		_, err = a.Load(ctx, 42)
		assert.ErrorIs(t, err, ErrUnknownRepository)

		got, err := a.QueryByRepository(ctx, "/nope")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestAdapterQueries(t *testing.T) {
	forEachAdapter(t, func(t *testing.T, a Adapter, _ func(testing.TB, Adapter) Adapter) {
		ctx := context.Background()
		r1, err := a.EnsureRepository(ctx, "/one", "one")
		require.NoError(t, err)
		r2, err := a.EnsureRepository(ctx, "/two", "two")
		require.NoError(t, err)

		_, err = a.Save(ctx, r1, []models.DeletedFileRecord{
			{Path: "a", Order: 1, Timestamp: 100},
			{Path: "b", Order: 2, Timestamp: 300},
		})
		require.NoError(t, err)
		_, err = a.Save(ctx, r2, []models.DeletedFileRecord{
			{Path: "c", Order: 1, Timestamp: 200},
			{Path: "d", Order: 2, Timestamp: 400},
		})
		require.NoError(t, err)

		byRepo, err := a.QueryByRepository(ctx, "/two")
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "d"}, paths(byRepo))

		ranged, err := a.QueryByTimeRange(ctx, 200, 300)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, entryPaths(ranged))
		assert.Equal(t, "/one", ranged[0].RepoRoot)
		assert.Equal(t, r2, ranged[1].RepoID)

		recent, err := a.QueryRecent(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "b", "c"}, entryPaths(recent))

		none, err := a.QueryRecent(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, none)

		stats, err := a.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Repositories)
		assert.Equal(t, 4, stats.Records)
		assert.Equal(t, int64(100), stats.OldestTimestamp)
		assert.Equal(t, int64(400), stats.NewestTimestamp)
	})
}

func TestAdapterBackupAndCompactKeepData(t *testing.T) {
	forEachAdapter(t, func(t *testing.T, a Adapter, _ func(testing.TB, Adapter) Adapter) {
		ctx := context.Background()
		id, err := a.EnsureRepository(ctx, "/repo", "Repo")
		require.NoError(t, err)
		_, err = a.Save(ctx, id, []models.DeletedFileRecord{
			{Path: "a", Order: 1, Timestamp: 10},
			{Path: "b", Order: 2, Timestamp: 20},
		})
		require.NoError(t, err)

		require.NoError(t, a.Compact(ctx))
		got, err := a.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, paths(got))

		data, err := a.Backup(ctx)
		require.NoError(t, err)

		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.Contains(t, raw, "repos")
		assert.Contains(t, raw, "nextRepoId")

		doc, err := DecodeDocument(data)
		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.NextRepoID)
		repo := doc.Repos["/repo"]
		require.NotNil(t, repo)
		assert.Equal(t, id, repo.ID)
		assert.Equal(t, "Repo", repo.DisplayName)
		assert.Equal(t, int64(3), repo.NextOrder)
		assert.Len(t, repo.Records, 2)
		// visibility is runtime-only
		assert.NotContains(t, string(data), "isVisible")
		assert.NotContains(t, string(data), "IsVisible")
	})
}

func TestAdapterClosed(t *testing.T) {
	forEachAdapter(t, func(t *testing.T, a Adapter, _ func(testing.TB, Adapter) Adapter) {
		require.NoError(t, a.Close())
		_, err := a.EnsureRepository(context.Background(), "/x", "x")
		assert.ErrorIs(t, err, ErrClosed)
		_, err = a.Stats(context.Background())
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestAdapterConcurrentRepositories(t *testing.T) {
	forEachAdapter(t, func(t *testing.T, a Adapter, _ func(testing.TB, Adapter) Adapter) {
		ctx := context.Background()
		const repos = 4
		ids := make([]int64, repos)
		for i := range ids {
			id, err := a.EnsureRepository(ctx, fmt.Sprintf("/repo-%d", i), "")
			require.NoError(t, err)
			ids[i] = id
		}

		var wg sync.WaitGroup
		errs := make(chan error, repos*2)
		for i := 0; i < repos*2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				records := []models.DeletedFileRecord{
					{Path: "shared", Order: int64(i + 1), Timestamp: int64(i)},
					{Path: fmt.Sprintf("own-%d", i), Order: int64(100 + i), Timestamp: int64(i)},
				}
				if _, err := a.Save(ctx, ids[i%repos], records); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for _, id := range ids {
			got, err := a.Load(ctx, id)
			require.NoError(t, err)
			// one "shared" winner plus two own records per repository
			assert.Len(t, got, 3)
		}
	})
}

func TestAdapterWriteOnceProperty(t *testing.T) {
	for _, h := range harnesses() {
		if h.name == "sqlite" {
			continue
		}
		t.Run(h.name, func(t *testing.T) {
			rapid.Check(t, func(rt *rapid.T) {
				a, _ := h.open(t)
				ctx := context.Background()
				id, err := a.EnsureRepository(ctx, "/p", "p")
				require.NoError(rt, err)

				first := make(map[string]models.DeletedFileRecord)
				batches := rapid.IntRange(1, 5).Draw(rt, "batches")
				for b := 0; b < batches; b++ {
					n := rapid.IntRange(0, 6).Draw(rt, fmt.Sprintf("n-%d", b))
					var batch []models.DeletedFileRecord
					for i := 0; i < n; i++ {
						r := models.DeletedFileRecord{
							Path:      rapid.SampledFrom([]string{"a", "b", "c", "d"}).Draw(rt, fmt.Sprintf("p-%d-%d", b, i)),
							Order:     rapid.Int64Range(1, 50).Draw(rt, fmt.Sprintf("o-%d-%d", b, i)),
							Timestamp: rapid.Int64Range(1, 1e6).Draw(rt, fmt.Sprintf("t-%d-%d", b, i)),
						}
						if _, seen := first[r.Path]; !seen {
							first[r.Path] = r
						}
						batch = append(batch, r)
					}
					_, err := a.Save(ctx, id, batch)
					require.NoError(rt, err)
				}

				got, err := a.Load(ctx, id)
				require.NoError(rt, err)
				require.Len(rt, got, len(first))
				for _, r := range got {
					want := first[r.Path]
					want.IsVisible = true
					require.Equal(rt, want, r)
				}
			})
		})
	}
}

func TestNewAdapterFromConfig(t *testing.T) {
	dir := t.TempDir()

	mem, err := NewAdapterFromConfig(Options{Type: TypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryAdapter{}, mem)

	file, err := NewAdapterFromConfig(Options{Type: TypeFile, Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, models.DeletedStateFilename), file.(*FileAdapter).Path())

	db, err := NewAdapterFromConfig(Options{Type: TypeSQLite, Dir: dir})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	assert.Equal(t, filepath.Join(dir, models.DeletedDBFilename), db.(*SQLiteAdapter).Path())

	_, err = NewAdapterFromConfig(Options{Type: TypeFile})
	assert.Error(t, err)
	_, err = NewAdapterFromConfig(Options{Type: "badger"})
	assert.ErrorContains(t, err, "unknown storage type")
}

func TestFileAdapterFailedWriteKeepsState(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileAdapter(filepath.Join(dir, "missing-parent", "blocked", models.DeletedStateFilename))
	require.NoError(t, err)
	id, err := a.EnsureRepository(context.Background(), "/r", "r")
	require.NoError(t, err)

	// make the target path a directory so the rename fails
	a.path = dir
	_, err = a.Save(context.Background(), id, []models.DeletedFileRecord{{Path: "x", Order: 1, Timestamp: 1}})
	require.Error(t, err)

	got, err := a.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func paths(records []models.DeletedFileRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Path)
	}
	return out
}

func entryPaths(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}
