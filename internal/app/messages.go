package app

import "github.com/ostehost/command-central-sub001/internal/tree"

// ResultMsg replaces the rendered tree.
type ResultMsg struct {
	Result tree.Result
}

// RevealMsg expands the ancestors of a node and moves the cursor onto it.
type RevealMsg struct {
	Identity string
}
