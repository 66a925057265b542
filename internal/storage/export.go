package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/valter-silva-au/agent-task-flow/internal/core"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// The task index snapshot is the shared, base-branch-only export of all
// tasks. Its checksum is computed over a canonicalized (recursively
// key-sorted) JSON encoding of the task list, so any manual edit without
// recomputing the checksum is detectable.

const (
	indexSchemaVersion = 2
	indexManagedBy     = "atf"
	indexChecksumAlgo  = "sha256"
)

// IndexEntry is one task's row in the export snapshot.
type IndexEntry struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Status    string   `json:"status"`
	Priority  string   `json:"priority,omitempty"`
	Owner     string   `json:"owner,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
	Commit    string   `json:"commit,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

// IndexMeta carries the snapshot's provenance and tamper-evidence fields.
type IndexMeta struct {
	SchemaVersion int    `json:"schema_version"`
	ManagedBy     string `json:"managed_by"`
	ChecksumAlgo  string `json:"checksum_algo"`
	Checksum      string `json:"checksum"`
}

// Index is the on-disk snapshot shape.
type Index struct {
	Tasks []IndexEntry `json:"tasks"`
	Meta  IndexMeta    `json:"meta"`
}

// indexEntryFromTask projects a task onto its snapshot row.
func indexEntryFromTask(t *models.Task) IndexEntry {
	entry := IndexEntry{
		ID:        t.ID,
		Title:     t.Title,
		Status:    string(t.Status),
		Priority:  string(t.Priority),
		Owner:     t.Owner,
		Tags:      t.Tags,
		DependsOn: t.DependsOn,
		UpdatedAt: t.DocUpdatedAt,
	}
	if t.Commit != nil {
		entry.Commit = t.Commit.Hash
	}
	return entry
}

// canonicalJSON re-encodes v with every object's keys sorted recursively.
// encoding/json sorts map keys, so a marshal/unmarshal round trip through
// untyped values yields the canonical form.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var untyped any
	if err := json.Unmarshal(raw, &untyped); err != nil {
		return nil, err
	}
	return json.Marshal(untyped)
}

// checksumTasks computes the sha256 checksum over the canonical encoding of
// the task list.
func checksumTasks(tasks []IndexEntry) (string, error) {
	canon, err := canonicalJSON(tasks)
	if err != nil {
		return "", fmt.Errorf("canonicalizing task index: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// BuildIndex assembles a checksummed snapshot from tasks, sorted by id.
func BuildIndex(tasks []*models.Task) (*Index, error) {
	entries := make([]IndexEntry, 0, len(tasks))
	for _, t := range tasks {
		entries = append(entries, indexEntryFromTask(t))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	sum, err := checksumTasks(entries)
	if err != nil {
		return nil, err
	}
	return &Index{
		Tasks: entries,
		Meta: IndexMeta{
			SchemaVersion: indexSchemaVersion,
			ManagedBy:     indexManagedBy,
			ChecksumAlgo:  indexChecksumAlgo,
			Checksum:      sum,
		},
	}, nil
}

// VerifyIndex recomputes the checksum of a loaded snapshot and reports a
// validation error on mismatch.
func VerifyIndex(idx *Index) error {
	if idx.Meta.ChecksumAlgo != indexChecksumAlgo {
		return core.Validationf("task index uses unsupported checksum algorithm %q", idx.Meta.ChecksumAlgo)
	}
	sum, err := checksumTasks(idx.Tasks)
	if err != nil {
		return core.Validationf("task index: %v", err)
	}
	if sum != idx.Meta.Checksum {
		return core.Validationf("task index checksum mismatch: expected %s, recorded %s", sum, idx.Meta.Checksum)
	}
	return nil
}

// WriteIndex writes the snapshot to path. An existing snapshot that fails
// its own checksum is refused rather than silently overwritten.
func WriteIndex(path string, idx *Index) error {
	if existing, err := ReadIndex(path); err == nil {
		if verr := VerifyIndex(existing); verr != nil {
			return verr
		}
	} else if !os.IsNotExist(underlying(err)) {
		return err
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return core.Validationf("encoding task index: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return core.IOErr("creating index directory", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return core.IOErr("writing task index "+path, err)
	}
	return nil
}

// ReadIndex loads a snapshot from path without verifying it.
func ReadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.IOErr("reading task index "+path, err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, core.Validationf("parsing task index %s: %v", path, err)
	}
	return &idx, nil
}

// underlying unwraps a category-tagged error to its cause for os.IsNotExist
// checks.
func underlying(err error) error {
	var tagged *core.Error
	if errors.As(err, &tagged) && tagged.Err != nil {
		return tagged.Err
	}
	return err
}
