package services

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

type memFilterStore struct {
	state   map[string][]string
	saveErr error
	saves   int
}

func (s *memFilterStore) Load() (map[string][]string, error) { return s.state, nil }

func (s *memFilterStore) Save(state map[string][]string) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.state = state
	return nil
}

func TestSetExtensionEnabledRemovesEmptyEntry(t *testing.T) {
	m := NewFilterStateManager(nil, nil)

	m.SetExtensionEnabled("ws1", "ts", true)
	assert.True(t, m.HasEntry("ws1"))
	assert.Equal(t, []string{".ts"}, m.EnabledExtensions("ws1"))

	m.SetExtensionEnabled("ws1", ".TS", false)
	assert.False(t, m.HasEntry("ws1"))
	assert.Nil(t, m.AllowSet("ws1"))
}

func TestParentToggleFansOut(t *testing.T) {
	m := NewFilterStateManager(nil, nil)
	m.RegisterWorkspace("a")
	m.RegisterWorkspace("b")

	assert.Equal(t, ParentUnchecked, m.ParentState(".go"))

	m.SetExtensionEnabled("a", ".go", true)
	assert.Equal(t, ParentMixed, m.ParentState(".go"))

	m.SetParentEnabled(".go", true)
	assert.Equal(t, ParentChecked, m.ParentState(".go"))
	assert.True(t, m.IsEnabled("b", ".go"))

	m.SetParentEnabled(".go", false)
	assert.Equal(t, ParentUnchecked, m.ParentState(".go"))
	assert.False(t, m.HasEntry("a"))
	assert.False(t, m.HasEntry("b"))
}

func TestValidateAndCleanFilter(t *testing.T) {
	m := NewFilterStateManager(nil, nil)
	m.SetExtensionEnabled("ws", ".ts", true)
	m.SetExtensionEnabled("ws", ".md", true)

	removed := m.ValidateAndCleanFilter("ws", []string{"src/a.ts", "src/b.ts"})
	assert.Equal(t, []string{".md"}, removed)
	assert.Equal(t, []string{".ts"}, m.EnabledExtensions("ws"))

	removed = m.ValidateAndCleanFilter("ws", nil)
	assert.Equal(t, []string{".ts"}, removed)
	assert.False(t, m.HasEntry("ws"))

	assert.Nil(t, m.ValidateAndCleanFilter("unknown", []string{"x.go"}))
}

func TestAvailableExtensions(t *testing.T) {
	m := NewFilterStateManager(nil, nil)
	got := m.AvailableExtensions([]string{"a.ts", "b.TS", "README", "c.go"})
	assert.Equal(t, map[string]int{".ts": 2, ".go": 1, "": 1}, got)
}

func TestFilterStatePersistsImmediately(t *testing.T) {
	store := &memFilterStore{state: map[string][]string{"ws": {"go"}}}
	m := NewFilterStateManager(store, nil)
	assert.True(t, m.IsEnabled("ws", ".go"))

	m.SetExtensionEnabled("ws", ".ts", true)
	assert.Equal(t, map[string][]string{"ws": {".go", ".ts"}}, store.state)

	m.SetExtensionEnabled("ws", ".ts", false)
	m.SetExtensionEnabled("ws", ".go", false)
	assert.Equal(t, map[string][]string{}, store.state)
	assert.Equal(t, 3, store.saves)
}

func TestFilterStatePersistFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	store := &memFilterStore{saveErr: errors.New("disk full")}
	m := NewFilterStateManager(store, zap.New(core))

	assert.NotPanics(t, func() { m.SetExtensionEnabled("ws", ".ts", true) })
	assert.True(t, m.IsEnabled("ws", ".ts"))
	assert.Equal(t, 1, logs.FilterMessage("failed to persist extension filters").Len())
}

func TestFileFilterStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "filters.json")
	store := NewFileFilterStore(path)

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, empty)

	m := NewFilterStateManager(store, nil)
	m.SetExtensionEnabled("ws", ".ts", true)

	reloaded := NewFilterStateManager(NewFileFilterStore(path), nil)
	assert.True(t, reloaded.IsEnabled("ws", ".ts"))
}

func TestFilterEmptySetNeverStored(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewFilterStateManager(nil, nil)
		exts := []string{".go", ".ts", ".md"}
		workspaces := []string{"a", "b"}
		for _, ws := range workspaces {
			m.RegisterWorkspace(ws)
		}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			ext := rapid.SampledFrom(exts).Draw(t, fmt.Sprintf("ext-%d", i))
			on := rapid.Bool().Draw(t, fmt.Sprintf("on-%d", i))
			if rapid.Bool().Draw(t, fmt.Sprintf("parent-%d", i)) {
				m.SetParentEnabled(ext, on)
			} else {
				ws := rapid.SampledFrom(workspaces).Draw(t, fmt.Sprintf("ws-%d", i))
				m.SetExtensionEnabled(ws, ext, on)
			}
		}

		for _, ws := range workspaces {
			if m.HasEntry(ws) != (len(m.EnabledExtensions(ws)) > 0) {
				t.Fatalf("workspace %s: entry presence diverged from set contents", ws)
			}
		}
	})
}
