package services

import (
	"sort"
	"sync"

	log "github.com/ostehost/command-central-sub001/internal/log"
	"github.com/ostehost/command-central-sub001/internal/utils"
	"go.uber.org/zap"
)

// ParentCheckState is the aggregate state of one extension across workspaces.
type ParentCheckState int

const (
	ParentUnchecked ParentCheckState = iota
	ParentChecked
	ParentMixed
)

func (s ParentCheckState) String() string {
	switch s {
	case ParentChecked:
		return "checked"
	case ParentMixed:
		return "mixed"
	default:
		return "unchecked"
	}
}

// FilterStore persists enabled extensions per workspace.
type FilterStore interface {
	Load() (map[string][]string, error)
	Save(state map[string][]string) error
}

// FilterStateManager holds the enabled extension set of every workspace.
// A workspace has an entry only while its set is non-empty.
type FilterStateManager struct {
	mu         sync.RWMutex
	enabled    map[string]map[string]struct{}
	workspaces map[string]struct{}
	store      FilterStore
	logger     *zap.Logger
}

// NewFilterStateManager loads persisted state from store when one is given.
// A load failure is logged and leaves the manager empty.
func NewFilterStateManager(store FilterStore, logger *zap.Logger) *FilterStateManager {
	m := &FilterStateManager{
		enabled:    make(map[string]map[string]struct{}),
		workspaces: make(map[string]struct{}),
		store:      store,
		logger:     log.OrNop(logger),
	}
	if store == nil {
		return m
	}
	loaded, err := store.Load()
	if err != nil {
		m.logger.Error("failed to load extension filters", zap.Error(err))
		return m
	}
	for ws, exts := range loaded {
		for _, ext := range exts {
			if ext = utils.NormalizeExtension(ext); ext != "" {
				m.addLocked(ws, ext)
			}
		}
		m.workspaces[ws] = struct{}{}
	}
	return m
}

// RegisterWorkspace makes ws a target of parent toggles.
func (m *FilterStateManager) RegisterWorkspace(ws string) {
	m.mu.Lock()
	m.workspaces[ws] = struct{}{}
	m.mu.Unlock()
}

// Workspaces returns the registered workspaces, sorted.
func (m *FilterStateManager) Workspaces() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.workspaces))
	for ws := range m.workspaces {
		out = append(out, ws)
	}
	sort.Strings(out)
	return out
}

func (m *FilterStateManager) addLocked(ws, ext string) {
	set, ok := m.enabled[ws]
	if !ok {
		set = make(map[string]struct{})
		m.enabled[ws] = set
	}
	set[ext] = struct{}{}
}

func (m *FilterStateManager) removeLocked(ws, ext string) {
	set, ok := m.enabled[ws]
	if !ok {
		return
	}
	delete(set, ext)
	if len(set) == 0 {
		delete(m.enabled, ws)
	}
}

// SetExtensionEnabled toggles ext for exactly one workspace.
func (m *FilterStateManager) SetExtensionEnabled(ws, ext string, enabled bool) {
	ext = utils.NormalizeExtension(ext)
	if ext == "" {
		return
	}
	m.mu.Lock()
	m.workspaces[ws] = struct{}{}
	if enabled {
		m.addLocked(ws, ext)
	} else {
		m.removeLocked(ws, ext)
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	m.persist(snapshot)
}

// SetParentEnabled toggles ext in every registered workspace.
func (m *FilterStateManager) SetParentEnabled(ext string, enabled bool) {
	ext = utils.NormalizeExtension(ext)
	if ext == "" {
		return
	}
	m.mu.Lock()
	for ws := range m.workspaces {
		if enabled {
			m.addLocked(ws, ext)
		} else {
			m.removeLocked(ws, ext)
		}
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	m.persist(snapshot)
}

// ParentState reports whether ext is enabled in all, none or some workspaces.
func (m *FilterStateManager) ParentState(ext string) ParentCheckState {
	ext = utils.NormalizeExtension(ext)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.workspaces) == 0 {
		return ParentUnchecked
	}
	on := 0
	for ws := range m.workspaces {
		if _, ok := m.enabled[ws][ext]; ok {
			on++
		}
	}
	switch on {
	case 0:
		return ParentUnchecked
	case len(m.workspaces):
		return ParentChecked
	default:
		return ParentMixed
	}
}

// IsEnabled reports whether ext is in the enabled set of ws.
func (m *FilterStateManager) IsEnabled(ws, ext string) bool {
	ext = utils.NormalizeExtension(ext)
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.enabled[ws][ext]
	return ok
}

// HasEntry reports whether ws has any enabled extension.
func (m *FilterStateManager) HasEntry(ws string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.enabled[ws]
	return ok
}

// AllowSet returns a copy of the enabled set of ws, or nil when every
// extension is allowed.
func (m *FilterStateManager) AllowSet(ws string) map[string]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.enabled[ws]
	if !ok {
		return nil
	}
	out := make(map[string]struct{}, len(set))
	for ext := range set {
		out[ext] = struct{}{}
	}
	return out
}

// EnabledExtensions returns the enabled extensions of ws, sorted.
func (m *FilterStateManager) EnabledExtensions(ws string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.enabled[ws])
}

// ValidateAndCleanFilter drops enabled extensions of ws that match none of
// liveFiles and returns what was removed. The entry disappears when emptied.
func (m *FilterStateManager) ValidateAndCleanFilter(ws string, liveFiles []string) []string {
	present := make(map[string]struct{})
	for _, f := range liveFiles {
		present[utils.ExtensionOf(f)] = struct{}{}
	}

	m.mu.Lock()
	set, ok := m.enabled[ws]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	var removed []string
	for ext := range set {
		if _, live := present[ext]; !live {
			removed = append(removed, ext)
		}
	}
	for _, ext := range removed {
		m.removeLocked(ws, ext)
	}
	var snapshot map[string][]string
	if len(removed) > 0 {
		snapshot = m.snapshotLocked()
	}
	m.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	sort.Strings(removed)
	m.logger.Debug("removed stale extension filters",
		zap.String("workspace", ws), zap.Strings("extensions", removed))
	m.persist(snapshot)
	return removed
}

// AvailableExtensions counts files per extension. Files without an
// extension are counted under "". It is safe on a nil manager.
func (m *FilterStateManager) AvailableExtensions(files []string) map[string]int {
	counts := make(map[string]int)
	for _, f := range files {
		counts[utils.ExtensionOf(f)]++
	}
	return counts
}

func (m *FilterStateManager) snapshotLocked() map[string][]string {
	out := make(map[string][]string, len(m.enabled))
	for ws, set := range m.enabled {
		out[ws] = sortedKeys(set)
	}
	return out
}

func (m *FilterStateManager) persist(snapshot map[string][]string) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(snapshot); err != nil {
		m.logger.Error("failed to persist extension filters", zap.Error(err))
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
