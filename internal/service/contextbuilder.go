package service

import (
	"slices"
	"strings"

	"github.com/BaoNguyen09/repo-explainer/internal/config"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
)

const elisionLine = "...\n"

// ContextBuilder assembles the size-bounded document sent to the model.
type ContextBuilder struct {
	cfg config.Context
}

// NewContextBuilder creates a ContextBuilder.
func NewContextBuilder(cfg config.Context) *ContextBuilder {
	return &ContextBuilder{cfg: cfg}
}

// Build renders the tree summary and appends files in order until the next
// one would exceed the budget; that file and all later ones are dropped.
// The returned TotalBytes equals len(Document()) and never exceeds the budget.
func (b *ContextBuilder) Build(tree *repo.Tree, files []repo.FetchedFile) repo.ContextBundle {
	summaryCap := b.cfg.TreeSummaryBytes
	if room := b.cfg.BudgetBytes - len(repo.TreeHeader); b.cfg.BudgetBytes > 0 && (summaryCap <= 0 || summaryCap > room) {
		summaryCap = room
	}

	var bundle repo.ContextBundle
	total := 0
	// A budget with no room beside the header gets no tree section at all.
	if b.cfg.BudgetBytes <= 0 || summaryCap > 0 {
		bundle.TreeSummary = treeSummary(tree, b.cfg.TreeDepth, summaryCap)
	}
	if bundle.TreeSummary != "" {
		total = len(repo.TreeHeader) + len(bundle.TreeSummary)
	}

	for i, f := range files {
		sec := len(repo.FileSection(f))
		if b.cfg.BudgetBytes > 0 && total+sec > b.cfg.BudgetBytes {
			for _, rest := range files[i:] {
				bundle.Dropped = append(bundle.Dropped, rest.Path)
			}
			break
		}
		bundle.Files = append(bundle.Files, f)
		total += sec
	}
	bundle.TotalBytes = total
	return bundle
}

type dirNode struct {
	children map[string]*dirNode
	isDir    bool
}

func (d *dirNode) child(name string) *dirNode {
	if d.children == nil {
		d.children = make(map[string]*dirNode)
	}
	c, ok := d.children[name]
	if !ok {
		c = &dirNode{}
		d.children[name] = c
	}
	return c
}

// treeSummary renders tree as an indented listing, directories first within
// each level, limited to depth levels (<= 0 for unlimited) and maxBytes
// (<= 0 for unlimited).
func treeSummary(tree *repo.Tree, depth, maxBytes int) string {
	root := &dirNode{isDir: true}
	for _, n := range tree.Nodes() {
		parts := strings.Split(n.Path, "/")
		cur := root
		for i, part := range parts {
			if depth > 0 && i >= depth {
				break
			}
			cur = cur.child(part)
			if i < len(parts)-1 || n.Kind == repo.KindDir {
				cur.isDir = true
			}
		}
	}

	var b strings.Builder
	full := false
	emit := func(line string) {
		if full {
			return
		}
		if maxBytes > 0 && b.Len()+len(line)+len(elisionLine) > maxBytes {
			if b.Len()+len(elisionLine) <= maxBytes {
				b.WriteString(elisionLine)
			}
			full = true
			return
		}
		b.WriteString(line)
	}

	emit(tree.Repo.FullName() + "/\n")
	var walk func(d *dirNode, indent string)
	walk = func(d *dirNode, indent string) {
		names := make([]string, 0, len(d.children))
		for name := range d.children {
			names = append(names, name)
		}
		slices.SortFunc(names, func(x, y string) int {
			dx, dy := d.children[x].isDir, d.children[y].isDir
			if dx != dy {
				if dx {
					return -1
				}
				return 1
			}
			return strings.Compare(x, y)
		})
		for _, name := range names {
			if full {
				return
			}
			c := d.children[name]
			if c.isDir {
				emit(indent + name + "/\n")
				walk(c, indent+"  ")
			} else {
				emit(indent + name + "\n")
			}
		}
	}
	walk(root, "  ")
	return b.String()
}
