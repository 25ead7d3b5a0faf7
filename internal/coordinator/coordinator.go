// Package coordinator keeps any number of views over any number of project
// roots in sync with their providers.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ostehost/command-central-sub001/internal/git"
	log "github.com/ostehost/command-central-sub001/internal/log"
	"github.com/ostehost/command-central-sub001/internal/metrics"
	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/provider"
	"github.com/ostehost/command-central-sub001/internal/tree"
	"go.uber.org/zap"
)

// ErrUnknownSlot is returned for a slot ID the coordinator does not own.
var ErrUnknownSlot = errors.New("unknown project slot")

// View is one rendered projection of a provider's tree.
type View interface {
	// Visible reports whether the user currently has the view open.
	Visible() bool
	// Reveal brings node into focus.
	Reveal(node models.Node)
	// Refresh replaces the rendered tree.
	Refresh(res tree.Result)
}

// Provider is the data source of one slot. *provider.Provider implements it.
type Provider interface {
	Root() string
	Start(ctx context.Context) error
	Refresh(ctx context.Context) tree.Result
	Result() tree.Result
	Ready() bool
	FindItem(file string) (models.Node, bool)
	Subscribe() provider.Subscription
	Unsubscribe(id string)
	Close()
}

// ProviderFactory creates the provider for a newly added project root.
type ProviderFactory func(root string) (Provider, error)

// Options configure a Coordinator.
type Options struct {
	Factory         ProviderFactory
	RefreshDebounce time.Duration
	RootsDebounce   time.Duration
	Logger          *zap.Logger
}

// SlotInfo describes one registered project.
type SlotInfo struct {
	ID    string
	Root  string
	Views []string
	Ready bool
}

type slot struct {
	id        string
	provider  Provider
	views     map[string]View
	viewOrder []string
	sub       provider.Subscription
	refresh   *Debouncer
	done      chan struct{}
}

// Coordinator owns the project slots and their views.
type Coordinator struct {
	factory         ProviderFactory
	refreshDebounce time.Duration
	logger          *zap.Logger
	roots           *Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	reloading atomic.Bool
	wg        sync.WaitGroup

	mu         sync.Mutex
	slots      map[string]*slot
	activeFile string
	closed     bool
}

// New returns a coordinator with no slots.
func New(opts Options) *Coordinator {
	if opts.RefreshDebounce <= 0 {
		opts.RefreshDebounce = DefaultRefreshDebounce
	}
	if opts.RootsDebounce <= 0 {
		opts.RootsDebounce = DefaultRootsDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		factory:         opts.Factory,
		refreshDebounce: opts.RefreshDebounce,
		logger:          log.OrNop(opts.Logger),
		roots:           NewDebouncer(opts.RootsDebounce),
		ctx:             ctx,
		cancel:          cancel,
		slots:           make(map[string]*slot),
	}
}

func slotID(root string) string {
	return filepath.Clean(root)
}

// AddProvider registers p under its root and starts it. The coordinator
// subscribes before starting, so the first data-ready signal is never missed.
func (c *Coordinator) AddProvider(p Provider) (string, error) {
	id := slotID(p.Root())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", fmt.Errorf("coordinator closed")
	}
	if _, ok := c.slots[id]; ok {
		c.mu.Unlock()
		return "", fmt.Errorf("slot %s already registered", id)
	}
	s := &slot{
		id:       id,
		provider: p,
		views:    make(map[string]View),
		sub:      p.Subscribe(),
		refresh:  NewDebouncer(c.refreshDebounce),
		done:     make(chan struct{}),
	}
	c.slots[id] = s
	c.mu.Unlock()

	c.wg.Add(1)
	go c.listen(s)

	if err := p.Start(c.ctx); err != nil {
		c.removeSlot(id)
		return "", fmt.Errorf("start provider %s: %w", id, err)
	}
	c.logger.Debug("project slot added", zap.String("slot", id))
	return id, nil
}

// listen reacts to one provider's events until the slot is removed.
func (c *Coordinator) listen(s *slot) {
	defer c.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.sub.Events:
			if !ok {
				return
			}
			switch ev.Type {
			case provider.EventDataChanged:
				s.refresh.Trigger(func() { s.provider.Refresh(c.ctx) })
			case provider.EventDataReady:
				c.render(s)
			}
		}
	}
}

func (c *Coordinator) render(s *slot) {
	res := s.provider.Result()
	for _, v := range c.viewsOf(s) {
		v.Refresh(res)
	}
}

func (c *Coordinator) viewsOf(s *slot) []View {
	c.mu.Lock()
	defer c.mu.Unlock()
	views := make([]View, 0, len(s.viewOrder))
	for _, id := range s.viewOrder {
		views = append(views, s.views[id])
	}
	return views
}

func (c *Coordinator) lookup(id string) (*slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[slotID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, id)
	}
	return s, nil
}

// AddView attaches v to a slot and returns the view's ID. A view joining a
// slot whose data is already loaded is rendered at once; otherwise it waits
// for the provider's data-ready signal.
func (c *Coordinator) AddView(slotID string, v View) (string, error) {
	s, err := c.lookup(slotID)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	c.mu.Lock()
	s.views[id] = v
	s.viewOrder = append(s.viewOrder, id)
	c.mu.Unlock()

	if s.provider.Ready() {
		v.Refresh(s.provider.Result())
	}
	return id, nil
}

// RemoveView detaches a view. Unknown view IDs are ignored.
func (c *Coordinator) RemoveView(slotID, viewID string) error {
	s, err := c.lookup(slotID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := s.views[viewID]; !ok {
		return nil
	}
	delete(s.views, viewID)
	for i, id := range s.viewOrder {
		if id == viewID {
			s.viewOrder = append(s.viewOrder[:i], s.viewOrder[i+1:]...)
			break
		}
	}
	return nil
}

// Slots lists the registered projects, sorted by ID.
func (c *Coordinator) Slots() []SlotInfo {
	c.mu.Lock()
	slots := make([]*slot, 0, len(c.slots))
	infos := make([]SlotInfo, 0, len(c.slots))
	for _, s := range c.slots {
		slots = append(slots, s)
		infos = append(infos, SlotInfo{
			ID:    s.id,
			Root:  s.provider.Root(),
			Views: append([]string(nil), s.viewOrder...),
		})
	}
	c.mu.Unlock()

	for i, s := range slots {
		infos[i].Ready = s.provider.Ready()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// ActiveFile returns the last file reported by OnActiveFileChanged.
func (c *Coordinator) ActiveFile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeFile
}

// OnActiveFileChanged reveals file in the visible views of the project that
// owns it. A relative file is resolved against the working directory, and
// the most specific containing root wins. Hidden views are left alone. It
// returns the reveal count.
func (c *Coordinator) OnActiveFileChanged(file string) int {
	abs, err := filepath.Abs(file)
	if err != nil {
		c.logger.Debug("cannot resolve active file", zap.String("file", file), zap.Error(err))
		return 0
	}

	c.mu.Lock()
	c.activeFile = abs
	roots := make([]string, 0, len(c.slots))
	for id := range c.slots {
		roots = append(roots, id)
	}
	match, ok := git.FindRepositoryForFile(abs, roots)
	var (
		owner *slot
		views []View
	)
	if ok && match.Strategy == git.MatchContaining {
		owner = c.slots[match.Root]
		for _, id := range owner.viewOrder {
			views = append(views, owner.views[id])
		}
	}
	c.mu.Unlock()

	if owner == nil {
		return 0
	}
	revealed := 0
	for _, v := range views {
		if !v.Visible() {
			continue
		}
		node, ok := owner.provider.FindItem(abs)
		if !ok {
			continue
		}
		v.Reveal(node)
		metrics.RecordReveal()
		revealed++
	}
	return revealed
}

// RequestRefresh schedules a debounced refresh of one slot.
func (c *Coordinator) RequestRefresh(slotID string) error {
	s, err := c.lookup(slotID)
	if err != nil {
		return err
	}
	s.refresh.Trigger(func() { s.provider.Refresh(c.ctx) })
	return nil
}

// Reload refreshes every slot now. A reload already in flight turns a
// concurrent call into a no-op that returns false.
func (c *Coordinator) Reload(ctx context.Context) bool {
	if !c.reloading.CompareAndSwap(false, true) {
		c.logger.Info("reload already in progress, ignoring request")
		metrics.RecordReloadSkipped()
		return false
	}
	defer c.reloading.Store(false)

	c.mu.Lock()
	slots := make([]*slot, 0, len(c.slots))
	for _, s := range c.slots {
		slots = append(slots, s)
	}
	c.mu.Unlock()

	for _, s := range slots {
		s.refresh.Cancel()
		s.provider.Refresh(ctx)
	}
	c.logger.Debug("reload finished", zap.Int("slots", len(slots)))
	return true
}

// SetRoots schedules a debounced reconciliation of the slot set with roots.
func (c *Coordinator) SetRoots(roots []string) {
	roots = append([]string(nil), roots...)
	c.roots.Trigger(func() {
		if err := c.ApplyRoots(roots); err != nil {
			c.logger.Error("project roots update failed", zap.Error(err))
		}
	})
}

// ApplyRoots adds a slot for every new root and removes slots whose root is
// gone. New providers are started; their views render on data-ready.
func (c *Coordinator) ApplyRoots(roots []string) error {
	want := make(map[string]string, len(roots))
	for _, r := range roots {
		want[slotID(r)] = r
	}

	c.mu.Lock()
	var stale []string
	for id := range c.slots {
		if _, ok := want[id]; !ok {
			stale = append(stale, id)
		}
	}
	var added []string
	for id := range want {
		if _, ok := c.slots[id]; !ok {
			added = append(added, id)
		}
	}
	c.mu.Unlock()

	sort.Strings(stale)
	sort.Strings(added)
	for _, id := range stale {
		c.removeSlot(id)
		c.logger.Debug("project slot removed", zap.String("slot", id))
	}

	if len(added) > 0 && c.factory == nil {
		return fmt.Errorf("no provider factory for %d new roots", len(added))
	}
	var errs []error
	for _, id := range added {
		p, err := c.factory(want[id])
		if err != nil {
			errs = append(errs, fmt.Errorf("create provider %s: %w", id, err))
			continue
		}
		if _, err := c.AddProvider(p); err != nil {
			p.Close()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveSlot drops a project and closes its provider.
func (c *Coordinator) RemoveSlot(id string) error {
	if _, err := c.lookup(id); err != nil {
		return err
	}
	c.removeSlot(id)
	return nil
}

func (c *Coordinator) removeSlot(id string) {
	c.mu.Lock()
	s, ok := c.slots[slotID(id)]
	if ok {
		delete(c.slots, s.id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	s.refresh.Stop()
	close(s.done)
	s.provider.Unsubscribe(s.sub.ID)
	s.provider.Close()
}

// Close removes every slot and waits for the listeners to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ids := make([]string, 0, len(c.slots))
	for id := range c.slots {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	c.roots.Stop()
	c.cancel()
	for _, id := range ids {
		c.removeSlot(id)
	}
	c.wg.Wait()
}
