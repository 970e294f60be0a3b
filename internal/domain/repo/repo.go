// Package repo defines the repository identity, file tree, and file content
// models that flow between pipeline stages.
package repo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
)

// ID identifies a repository on the source host. Ref is optional; an empty
// Ref means the default branch.
type ID struct {
	Owner string `json:"owner"`
	Name  string `json:"repo"`
	Ref   string `json:"ref,omitempty"`
}

// FullName returns "owner/repo".
func (id ID) FullName() string {
	return id.Owner + "/" + id.Name
}

// String returns "owner/repo" or "owner/repo@ref".
func (id ID) String() string {
	if id.Ref == "" {
		return id.FullName()
	}
	return id.FullName() + "@" + id.Ref
}

var (
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// Validate checks that the identifier matches host path-segment syntax.
func (id ID) Validate() error {
	if id.Owner == "" {
		return fmt.Errorf("%w: owner is required", domain.ErrInvalidInput)
	}
	if id.Name == "" {
		return fmt.Errorf("%w: repository name is required", domain.ErrInvalidInput)
	}
	if !ownerPattern.MatchString(id.Owner) {
		return fmt.Errorf("%w: invalid owner %q", domain.ErrInvalidInput, id.Owner)
	}
	if !namePattern.MatchString(id.Name) || id.Name == "." || id.Name == ".." {
		return fmt.Errorf("%w: invalid repository name %q", domain.ErrInvalidInput, id.Name)
	}
	return ValidateRef(id.Ref)
}

// ValidateRef checks an optional branch, tag, or commit reference.
func ValidateRef(ref string) error {
	if ref == "" {
		return nil
	}
	if len(ref) > 255 {
		return fmt.Errorf("%w: ref too long", domain.ErrInvalidInput)
	}
	if strings.HasPrefix(ref, "-") || strings.Contains(ref, "..") || strings.ContainsAny(ref, " \t\r\n~^:?*[\\") {
		return fmt.Errorf("%w: invalid ref %q", domain.ErrInvalidInput, ref)
	}
	return nil
}

// knownHosts are the host names accepted in URL and bare-path queries.
var knownHosts = map[string]bool{
	"github.com":     true,
	"www.github.com": true,
}

// ParseQuery converts a user query into a validated ID. Accepted forms:
//
//	https://github.com/owner/repo[.git][/tree/ref]
//	github.com/owner/repo
//	owner/repo
//
// It performs no network I/O.
func ParseQuery(raw string) (ID, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return ID{}, fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	if strings.ContainsAny(q, " \t\r\n") {
		return ID{}, fmt.Errorf("%w: %q is not a repository reference", domain.ErrInvalidInput, q)
	}

	lower := strings.ToLower(q)
	hasScheme := false
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, scheme) {
			q = q[len(scheme):]
			hasScheme = true
			break
		}
	}
	if i := strings.IndexAny(q, "?#"); i >= 0 {
		q = q[:i]
	}
	q = strings.Trim(q, "/")

	segments := strings.Split(q, "/")
	if hasScheme || knownHosts[strings.ToLower(segments[0])] {
		if !knownHosts[strings.ToLower(segments[0])] {
			return ID{}, fmt.Errorf("%w: unsupported host %q", domain.ErrInvalidInput, segments[0])
		}
		segments = segments[1:]
	}
	if len(segments) < 2 {
		return ID{}, fmt.Errorf("%w: %q is not an owner/repo reference", domain.ErrInvalidInput, raw)
	}

	id := ID{
		Owner: segments[0],
		Name:  strings.TrimSuffix(segments[1], ".git"),
	}
	rest := segments[2:]
	switch {
	case len(rest) == 0:
	case len(rest) >= 2 && rest[0] == "tree":
		id.Ref = rest[1]
	case len(rest) >= 2 && rest[0] == "blob":
		id.Ref = rest[1]
	default:
		return ID{}, fmt.Errorf("%w: %q is not an owner/repo reference", domain.ErrInvalidInput, raw)
	}

	if err := id.Validate(); err != nil {
		return ID{}, err
	}
	return id, nil
}
