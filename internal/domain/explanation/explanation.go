// Package explanation defines the request, result, and progress models of an
// explanation run.
package explanation

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
)

// Query is the raw caller input. Either Repository or Owner and Repo must be set.
type Query struct {
	Repository   string `json:"query,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Repo         string `json:"repo,omitempty"`
	Ref          string `json:"ref,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// QueryFrom reads a Query from named parameters such as URL query values.
// Both "query" and "repository" name the free-form reference.
func QueryFrom(get func(string) string) Query {
	q := Query{
		Repository:   get("query"),
		Owner:        get("owner"),
		Repo:         get("repo"),
		Ref:          get("ref"),
		Instructions: get("instructions"),
	}
	if q.Repository == "" {
		q.Repository = get("repository")
	}
	return q
}

// Empty reports whether no repository was named.
func (q Query) Empty() bool {
	return strings.TrimSpace(q.Repository) == "" && q.Owner == "" && q.Repo == ""
}

// Resolve validates the query and returns the repository identifier and the
// trimmed instructions. maxInstructions <= 0 disables the length check.
func (q Query) Resolve(maxInstructions int) (repo.ID, string, error) {
	var (
		id  repo.ID
		err error
	)
	switch {
	case strings.TrimSpace(q.Repository) != "":
		id, err = repo.ParseQuery(q.Repository)
		if err != nil {
			return repo.ID{}, "", err
		}
	case q.Owner != "" || q.Repo != "":
		id = repo.ID{Owner: strings.TrimSpace(q.Owner), Name: strings.TrimSuffix(strings.TrimSpace(q.Repo), ".git")}
	default:
		return repo.ID{}, "", fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	if ref := strings.TrimSpace(q.Ref); ref != "" {
		id.Ref = ref
	}
	if err := id.Validate(); err != nil {
		return repo.ID{}, "", err
	}

	instr := strings.TrimSpace(q.Instructions)
	if !utf8.ValidString(instr) {
		return repo.ID{}, "", fmt.Errorf("%w: instructions must be valid UTF-8", domain.ErrInvalidInput)
	}
	if maxInstructions > 0 && len(instr) > maxInstructions {
		return repo.ID{}, "", fmt.Errorf("%w: instructions exceed %d bytes", domain.ErrInvalidInput, maxInstructions)
	}
	return id, instr, nil
}

// Request is the logical identity of an explanation.
type Request struct {
	Repo         repo.ID
	Instructions string
	Provider     string
	// Credential is the fingerprint of a caller-supplied host token, empty
	// for requests made with the service's own credentials. Results fetched
	// with one caller's access are never served to another.
	Credential string
}

// CredentialFingerprint returns the hex keyed BLAKE2b-256 digest of token.
func CredentialFingerprint(key [32]byte, token string) string {
	h, _ := blake2b.New256(key[:])
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

// CacheKey returns the hex BLAKE2b-256 digest of the request identity.
// Fields are length-prefixed so that no two distinct requests collide by
// concatenation.
func (r Request) CacheKey() string {
	h, _ := blake2b.New256(nil)
	var n [8]byte
	for _, field := range []string{
		strings.ToLower(r.Repo.Owner),
		strings.ToLower(r.Repo.Name),
		r.Repo.Ref,
		r.Provider,
		r.Instructions,
		r.Credential,
	} {
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Result is the terminal payload of a successful run.
type Result struct {
	Explanation string    `json:"explanation"`
	Repo        string    `json:"repo"`
	Timestamp   time.Time `json:"timestamp"`
	CacheHit    bool      `json:"cache"`
}

// Stage names a pipeline step reported to the caller.
type Stage string

const (
	StageValidating            Stage = "validating"
	StageFetchingTree          Stage = "fetching_tree"
	StageExploringFiles        Stage = "exploring_files"
	StageFetchingFiles         Stage = "fetching_files"
	StageGeneratingExplanation Stage = "generating_explanation"
)

// Stages lists every stage in run order.
var Stages = []Stage{
	StageValidating,
	StageFetchingTree,
	StageExploringFiles,
	StageFetchingFiles,
	StageGeneratingExplanation,
}

// Order returns the position of s in Stages, or -1 for an unknown stage.
func (s Stage) Order() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// EventType distinguishes progress from terminal events.
type EventType string

const (
	EventStatus EventType = "status"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Event is one message of a run's progress stream.
type Event struct {
	Type      EventType `json:"type"`
	Stage     Stage     `json:"stage,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Err       error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventResult || e.Type == EventError
}
