package repo

import (
	"path"
	"strings"
)

// NodeKind distinguishes files from directories.
type NodeKind string

const (
	KindFile NodeKind = "file"
	KindDir  NodeKind = "dir"
)

// Node is a single entry of a repository tree.
type Node struct {
	Path      string   `json:"path"`
	Kind      NodeKind `json:"kind"`
	SizeBytes int64    `json:"size_bytes"`
}

// Tree is the ordered, read-only file listing of a repository at a ref.
type Tree struct {
	Repo  ID
	Ref   string // resolved ref the tree was listed at
	nodes []Node
	index map[string]int
}

// NewTree builds a Tree from nodes, keeping the first occurrence of each path.
func NewTree(id ID, ref string, nodes []Node) *Tree {
	t := &Tree{
		Repo:  id,
		Ref:   ref,
		nodes: make([]Node, 0, len(nodes)),
		index: make(map[string]int, len(nodes)),
	}
	for _, n := range nodes {
		n.Path = strings.Trim(n.Path, "/")
		if n.Path == "" {
			continue
		}
		if _, dup := t.index[n.Path]; dup {
			continue
		}
		t.index[n.Path] = len(t.nodes)
		t.nodes = append(t.nodes, n)
	}
	return t
}

// Nodes returns a copy of the tree entries in order.
func (t *Tree) Nodes() []Node {
	out := make([]Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Len returns the number of entries.
func (t *Tree) Len() int { return len(t.nodes) }

// Lookup returns the node at p.
func (t *Tree) Lookup(p string) (Node, bool) {
	i, ok := t.index[p]
	if !ok {
		return Node{}, false
	}
	return t.nodes[i], true
}

// IsFile reports whether p exists in the tree and is a file.
func (t *Tree) IsFile(p string) bool {
	n, ok := t.Lookup(p)
	return ok && n.Kind == KindFile
}

// Files returns the file paths in tree order.
func (t *Tree) Files() []string {
	out := make([]string, 0, len(t.nodes))
	for _, n := range t.nodes {
		if n.Kind == KindFile {
			out = append(out, n.Path)
		}
	}
	return out
}

// Without returns a new tree excluding every node for which skip returns true.
// Descendants of a skipped directory are excluded as well.
func (t *Tree) Without(skip func(Node) bool) *Tree {
	kept := make([]Node, 0, len(t.nodes))
	var skippedDirs []string
	for _, n := range t.nodes {
		if underAny(n.Path, skippedDirs) {
			continue
		}
		if skip(n) {
			if n.Kind == KindDir {
				skippedDirs = append(skippedDirs, n.Path+"/")
			}
			continue
		}
		kept = append(kept, n)
	}
	return NewTree(t.Repo, t.Ref, kept)
}

func underAny(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		if strings.HasPrefix(p, pre) {
			return true
		}
	}
	return false
}

// DefaultSkipPatterns are noise paths removed from every tree.
var DefaultSkipPatterns = []string{
	"__pycache__", "node_modules", ".git", "dist", "build",
	".next", ".venv", "venv", ".idea", ".vscode",
	"*.min.js", "*.min.css", ".DS_Store",
}

// SkipMatcher returns a predicate matching any node whose path contains a
// segment matching one of patterns (shell glob syntax).
func SkipMatcher(patterns []string) func(Node) bool {
	return func(n Node) bool {
		for _, seg := range strings.Split(n.Path, "/") {
			for _, p := range patterns {
				if ok, _ := path.Match(p, seg); ok {
					return true
				}
			}
		}
		return false
	}
}
