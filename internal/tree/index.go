package tree

import (
	"fmt"

	"github.com/ostehost/command-central-sub001/internal/models"
)

// Index answers the navigation queries of a view over one built tree. The
// parent map is rebuilt with every tree so reveal never walks the tree.
type Index struct {
	roots    []models.Node
	children map[models.Node][]models.Node
	parents  map[models.Node]models.Node
	byID     map[string]models.Node
	byPath   map[string]*models.ChangeItem
}

// NewIndex indexes the given roots: StatusGroups, or ChangeItems in
// ungrouped mode.
func NewIndex(roots []models.Node) *Index {
	idx := &Index{
		roots:    roots,
		children: make(map[models.Node][]models.Node),
		parents:  make(map[models.Node]models.Node),
		byID:     make(map[string]models.Node),
		byPath:   make(map[string]*models.ChangeItem),
	}
	for _, root := range roots {
		idx.add(root, nil)
	}
	return idx
}

func (idx *Index) add(node, parent models.Node) {
	if parent != nil {
		idx.parents[node] = parent
	}
	idx.byID[node.Identity()] = node

	switch n := node.(type) {
	case *models.StatusGroup:
		kids := make([]models.Node, len(n.TimeGroups))
		for i, tg := range n.TimeGroups {
			kids[i] = tg
			idx.add(tg, n)
		}
		idx.children[n] = kids
	case *models.TimeGroup:
		kids := make([]models.Node, len(n.Items))
		for i, item := range n.Items {
			kids[i] = item
			idx.add(item, n)
		}
		idx.children[n] = kids
	case *models.ChangeItem:
		// a path given in both input lists resolves to its staged item
		if _, seen := idx.byPath[n.Path]; !seen {
			idx.byPath[n.Path] = n
		}
	default:
		panic(fmt.Sprintf("tree: unhandled node kind %T", node))
	}
}

// GetChildren returns the ordered children of parent, or the roots when
// parent is nil.
func (idx *Index) GetChildren(parent models.Node) []models.Node {
	if parent == nil {
		return idx.roots
	}
	return idx.children[parent]
}

// GetParent returns the parent of node; roots have none.
func (idx *Index) GetParent(node models.Node) (models.Node, bool) {
	p, ok := idx.parents[node]
	return p, ok
}

// FindByIdentity looks a change item up by its repository-relative path,
// falling back to node identities.
func (idx *Index) FindByIdentity(key string) (models.Node, bool) {
	if item, ok := idx.byPath[key]; ok {
		return item, true
	}
	if n, ok := idx.byID[key]; ok {
		return n, true
	}
	return nil, false
}

// Paths returns the path of every change item in the tree.
func (idx *Index) Paths() []string {
	out := make([]string, 0, len(idx.byPath))
	for p := range idx.byPath {
		out = append(out, p)
	}
	return out
}

// Ancestors returns the chain from the root down to node's parent.
func (idx *Index) Ancestors(node models.Node) []models.Node {
	var chain []models.Node
	for {
		p, ok := idx.parents[node]
		if !ok {
			break
		}
		chain = append([]models.Node{p}, chain...)
		node = p
	}
	return chain
}
