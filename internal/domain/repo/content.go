package repo

import "strings"

// Selection is the ordered, de-duplicated list of file paths chosen for reading.
// Order is priority: earlier paths are kept first when budgets are tight.
type Selection struct {
	Paths    []string `json:"paths"`
	Fallback bool     `json:"fallback"` // true when the heuristic list was used
}

// Len returns the number of selected paths.
func (s Selection) Len() int { return len(s.Paths) }

// FetchedFile is the possibly truncated content of one selected file.
type FetchedFile struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	SizeBytes int64  `json:"size_bytes"` // full size reported by the host
	Truncated bool   `json:"truncated"`
}

// ContextBundle is the size-bounded document handed to the explanation model.
type ContextBundle struct {
	TreeSummary string        `json:"tree_summary"`
	Files       []FetchedFile `json:"files"`
	Dropped     []string      `json:"dropped,omitempty"`
	TotalBytes  int           `json:"total_bytes"`
}

// FileSection renders the block a single file occupies in the document.
func FileSection(f FetchedFile) string {
	var b strings.Builder
	b.WriteString("\n### File: ")
	b.WriteString(f.Path)
	b.WriteString("\n```\n")
	b.WriteString(f.Content)
	if !strings.HasSuffix(f.Content, "\n") {
		b.WriteByte('\n')
	}
	if f.Truncated {
		b.WriteString("[truncated]\n")
	}
	b.WriteString("```\n")
	return b.String()
}

// TreeHeader prefixes the tree summary in the document.
const TreeHeader = "## Repository tree\n"

// Document renders the tree summary followed by every file section. The
// tree header is omitted when there is no summary.
func (c ContextBundle) Document() string {
	var b strings.Builder
	if c.TreeSummary != "" {
		b.WriteString(TreeHeader)
		b.WriteString(c.TreeSummary)
	}
	for _, f := range c.Files {
		b.WriteString(FileSection(f))
	}
	return b.String()
}
