package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	log "github.com/ostehost/command-central-sub001/internal/log"
	"github.com/ostehost/command-central-sub001/internal/metrics"
	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/utils"
	"go.uber.org/zap"
)

const (
	// DefaultFileCap bounds timestamp lookups per build.
	DefaultFileCap = 500
	statWorkers    = 8
)

// Record is one raw status row handed to the builder.
type Record struct {
	Path                 string
	OriginalPath         string
	XY                   string
	Category             models.Category
	Change               models.ChangeKind
	ModifiedAfterStaging bool
}

// Input is everything one build needs. Now is supplied by the caller so
// bucketing is deterministic.
type Input struct {
	RepoID   int64
	RepoRoot string
	Staged   []Record
	Unstaged []Record
	Order    models.SortOrder
	// Allow restricts items to these extensions; nil or empty allows all.
	Allow    map[string]struct{}
	Grouping bool
	Now      time.Time
}

// DeletedLookup supplies timestamps for files that no longer exist.
type DeletedLookup interface {
	Lookup(repoID int64, path string) (models.DeletedFileRecord, bool)
}

// StatFunc reports file metadata; os.Stat by default.
type StatFunc func(path string) (os.FileInfo, error)

// Options configure a Builder.
type Options struct {
	FileCap int
	Stat    StatFunc
	Deleted DeletedLookup
	Logger  *zap.Logger
}

// Result is the output of one build.
type Result struct {
	State  State
	Groups []*models.StatusGroup
	// Flat is set instead of Groups when grouping is disabled.
	Flat  []*models.ChangeItem
	Index *Index
	Err   error
}

// Total is the number of change items in the result.
func (r Result) Total() int {
	if r.Flat != nil {
		return len(r.Flat)
	}
	n := 0
	for _, g := range r.Groups {
		n += g.TotalCount
	}
	return n
}

// Builder turns raw status records into the change tree.
type Builder struct {
	fileCap int
	stat    StatFunc
	deleted DeletedLookup
	logger  *zap.Logger
}

// NewBuilder returns a builder; zero options select the defaults.
func NewBuilder(opts Options) *Builder {
	if opts.FileCap <= 0 {
		opts.FileCap = DefaultFileCap
	}
	if opts.Stat == nil {
		opts.Stat = os.Stat
	}
	return &Builder{
		fileCap: opts.FileCap,
		stat:    opts.Stat,
		deleted: opts.Deleted,
		logger:  log.OrNop(opts.Logger),
	}
}

// Build classifies in. It never panics: unexpected failures yield an empty
// result in StateInternalError.
func (b *Builder) Build(in Input) (res Result) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("change tree build failed",
				zap.String("repo", in.RepoRoot),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = internalError(fmt.Errorf("%w: %v", ErrInternal, r))
		}
		metrics.RecordClassification(res.State.String(), time.Since(started))
	}()

	items := b.collect(in)
	if len(items) == 0 {
		b.logger.Debug("no changes to classify",
			zap.String("repo", in.RepoRoot),
			zap.Int("staged", len(in.Staged)),
			zap.Int("unstaged", len(in.Unstaged)))
		return Result{State: StateEmpty, Index: NewIndex(nil)}
	}

	b.resolveTimestamps(in, items)

	if !in.Grouping {
		sortItems(items, in.Order)
		roots := make([]models.Node, len(items))
		for i, item := range items {
			roots[i] = item
		}
		return Result{State: StateReady, Flat: items, Index: NewIndex(roots)}
	}

	groups := groupItems(items, in.Now, in.Order)
	if err := verifyTotals(groups); err != nil {
		b.logger.Error("change tree invariant violated", zap.String("repo", in.RepoRoot), zap.Error(err))
		return internalError(err)
	}

	roots := make([]models.Node, len(groups))
	for i, g := range groups {
		roots[i] = g
	}
	b.logger.Debug("classified changes",
		zap.String("repo", in.RepoRoot), zap.Int("items", len(items)), zap.Int("groups", len(groups)))
	return Result{State: StateReady, Groups: groups, Index: NewIndex(roots)}
}

func internalError(err error) Result {
	return Result{State: StateInternalError, Index: NewIndex(nil), Err: err}
}

// collect applies the extension filter and converts records to items.
func (b *Builder) collect(in Input) []*models.ChangeItem {
	items := make([]*models.ChangeItem, 0, len(in.Staged)+len(in.Unstaged))
	add := func(records []Record, staged bool) {
		for _, r := range records {
			if len(in.Allow) > 0 {
				if _, ok := in.Allow[utils.ExtensionOf(r.Path)]; !ok {
					continue
				}
			}
			category := r.Category
			if staged {
				category = models.CategoryStaged
			} else if category == "" || category == models.CategoryStaged {
				category = models.CategoryUnstaged
			}
			items = append(items, &models.ChangeItem{
				Path:                 r.Path,
				AbsPath:              filepath.Join(in.RepoRoot, filepath.FromSlash(r.Path)),
				OriginalPath:         r.OriginalPath,
				XY:                   r.XY,
				Change:               r.Change,
				Category:             category,
				Staged:               staged,
				ModifiedAfterStaging: r.ModifiedAfterStaging,
			})
		}
	}
	add(in.Staged, true)
	add(in.Unstaged, false)
	return items
}

// resolveTimestamps fills timestamps for the first fileCap items, preferring
// the live mtime and falling back to the deleted-file record. Per-file
// failures leave the timestamp unset.
func (b *Builder) resolveTimestamps(in Input, items []*models.ChangeItem) {
	limit := len(items)
	if limit > b.fileCap {
		b.logger.Debug("timestamp lookups capped",
			zap.String("repo", in.RepoRoot), zap.Int("items", len(items)), zap.Int("cap", b.fileCap))
		limit = b.fileCap
	}

	sem := make(chan struct{}, statWorkers)
	var (
		wg       sync.WaitGroup
		panicMu  sync.Mutex
		panicVal any
	)
	for _, item := range items[:limit] {
		wg.Add(1)
		sem <- struct{}{}
		go func(item *models.ChangeItem) {
			defer wg.Done()
			defer func() { <-sem }()
			// re-raised on the build goroutine where Build recovers it
			defer func() {
				if r := recover(); r != nil {
					panicMu.Lock()
					if panicVal == nil {
						panicVal = r
					}
					panicMu.Unlock()
				}
			}()
			info, err := b.stat(item.AbsPath)
			if err == nil {
				item.Timestamp = info.ModTime().UnixMilli()
				return
			}
			if b.deleted == nil {
				return
			}
			if rec, ok := b.deleted.Lookup(in.RepoID, item.Path); ok {
				item.Timestamp = rec.Timestamp
				item.Order = rec.Order
			}
		}(item)
	}
	wg.Wait()
	if panicVal != nil {
		panic(panicVal)
	}
}

func groupItems(items []*models.ChangeItem, now time.Time, order models.SortOrder) []*models.StatusGroup {
	byCategory := map[models.Category]map[models.TimeBucket][]*models.ChangeItem{}
	for _, item := range items {
		group := item.Group()
		if byCategory[group] == nil {
			byCategory[group] = map[models.TimeBucket][]*models.ChangeItem{}
		}
		bucket := BucketFor(item.Timestamp, now)
		byCategory[group][bucket] = append(byCategory[group][bucket], item)
	}

	var groups []*models.StatusGroup
	for _, category := range []models.Category{models.CategoryStaged, models.CategoryUnstaged} {
		buckets, ok := byCategory[category]
		if !ok {
			continue
		}
		sg := &models.StatusGroup{Category: category}
		for _, bucket := range models.Buckets {
			bucketItems := buckets[bucket]
			if len(bucketItems) == 0 {
				continue
			}
			sortItems(bucketItems, order)
			sg.TimeGroups = append(sg.TimeGroups, &models.TimeGroup{
				Category: category,
				Bucket:   bucket,
				Label:    bucket.Label(),
				Items:    bucketItems,
			})
			sg.TotalCount += len(bucketItems)
		}
		groups = append(groups, sg)
	}
	return groups
}

func sortItems(items []*models.ChangeItem, order models.SortOrder) {
	oldest := order == models.SortOldestFirst
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Timestamp != b.Timestamp {
			if oldest {
				return a.Timestamp < b.Timestamp
			}
			return a.Timestamp > b.Timestamp
		}
		if a.Order != b.Order {
			if oldest {
				return a.Order < b.Order
			}
			return a.Order > b.Order
		}
		return a.Path < b.Path
	})
}

func verifyTotals(groups []*models.StatusGroup) error {
	for _, g := range groups {
		if n := g.CountItems(); n != g.TotalCount {
			return fmt.Errorf("%w: group %s total %d, children %d", ErrInternal, g.Category, g.TotalCount, n)
		}
	}
	return nil
}
