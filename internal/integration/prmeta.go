package integration

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/valter-silva-au/agent-task-flow/internal/core"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// Artifact file names inside a task's PR directory.
const (
	metadataFile   = "pr.json"
	diffstatFile   = "diffstat.txt"
	transcriptFile = "verification.jsonl"
	archiveSubdir  = "archive"
)

// Artifacts manages the on-disk PR artifacts for tasks: the metadata file
// pairing branch with base, a diffstat snapshot, and the append-only
// verification transcript. All three live under Dir/<taskID>/ and are
// archived, never deleted, when a merged branch is cleaned up.
type Artifacts struct {
	Dir string
}

// NewArtifacts returns an artifact store rooted at dir.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{Dir: dir}
}

// TaskDir returns the artifact directory for a task.
func (a *Artifacts) TaskDir(taskID string) string {
	return filepath.Join(a.Dir, taskID)
}

// MetadataPath returns the PR metadata file path for a task.
func (a *Artifacts) MetadataPath(taskID string) string {
	return filepath.Join(a.TaskDir(taskID), metadataFile)
}

// DiffstatPath returns the diffstat snapshot path for a task.
func (a *Artifacts) DiffstatPath(taskID string) string {
	return filepath.Join(a.TaskDir(taskID), diffstatFile)
}

// TranscriptPath returns the verification transcript path for a task.
func (a *Artifacts) TranscriptPath(taskID string) string {
	return filepath.Join(a.TaskDir(taskID), transcriptFile)
}

// LoadMetadata reads PR metadata from the working tree. A missing file is
// reported as an IO-category error wrapping os.ErrNotExist so callers can
// fall back to the committed blob.
func (a *Artifacts) LoadMetadata(taskID string) (*models.PRMetadata, error) {
	path := a.MetadataPath(taskID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.IOErr("reading PR metadata "+path, err)
	}
	return decodeMetadata(data, path)
}

// LoadMetadataFromBranch reads PR metadata from the blob committed on the
// given branch, used when the file is absent from the base working tree.
// The read is content-addressed; it never touches the working copy.
func (a *Artifacts) LoadMetadataFromBranch(git GitPrimitives, branch, taskID string) (*models.PRMetadata, error) {
	rel := filepath.ToSlash(a.MetadataPath(taskID))
	data, err := git.ShowFile(branch, rel)
	if err != nil {
		return nil, err
	}
	return decodeMetadata(data, branch+":"+rel)
}

func decodeMetadata(data []byte, source string) (*models.PRMetadata, error) {
	var meta models.PRMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, core.Validationf("PR metadata %s is not valid JSON: %v", source, err)
	}
	if meta.Branch == "" {
		return nil, core.Validationf("PR metadata %s has an empty branch", source)
	}
	return &meta, nil
}

// WriteMetadata persists PR metadata for a task, creating the artifact
// directory as needed.
func (a *Artifacts) WriteMetadata(taskID string, meta *models.PRMetadata) error {
	if meta == nil || meta.Branch == "" {
		return core.Usagef("PR metadata requires a branch")
	}
	if err := os.MkdirAll(a.TaskDir(taskID), 0o750); err != nil {
		return core.IOErr("creating PR artifact directory", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding PR metadata: %w", err)
	}
	path := a.MetadataPath(taskID)
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return core.IOErr("writing PR metadata "+path, err)
	}
	return nil
}

// WriteDiffstat persists the diffstat snapshot for a task.
func (a *Artifacts) WriteDiffstat(taskID, stat string) error {
	if err := os.MkdirAll(a.TaskDir(taskID), 0o750); err != nil {
		return core.IOErr("creating PR artifact directory", err)
	}
	path := a.DiffstatPath(taskID)
	if err := os.WriteFile(path, []byte(strings.TrimRight(stat, "\n")+"\n"), 0o600); err != nil {
		return core.IOErr("writing diffstat "+path, err)
	}
	return nil
}

// AppendTranscript appends verification entries to the task's transcript.
// The transcript is JSONL and append-only: history is never rewritten.
func (a *Artifacts) AppendTranscript(taskID string, entries []models.VerificationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := os.MkdirAll(a.TaskDir(taskID), 0o750); err != nil {
		return core.IOErr("creating PR artifact directory", err)
	}
	path := a.TranscriptPath(taskID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return core.IOErr("opening transcript "+path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return core.IOErr("appending transcript entry", err)
		}
	}
	return nil
}

// ReadTranscript loads every entry from the task's transcript. A missing
// transcript reads as empty. Malformed lines are skipped; the transcript is
// shared with humans and partial hand edits must not break the engine.
func (a *Artifacts) ReadTranscript(taskID string) ([]models.VerificationEntry, error) {
	f, err := os.Open(a.TranscriptPath(taskID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, core.IOErr("opening transcript", err)
	}
	defer f.Close()

	var entries []models.VerificationEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry models.VerificationEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, core.IOErr("reading transcript", err)
	}
	return entries, nil
}

// TranscriptVerified reports whether the transcript already records a fully
// passing verification run for the given commit hash.
func (a *Artifacts) TranscriptVerified(taskID, sha string) (bool, error) {
	entries, err := a.ReadTranscript(taskID)
	if err != nil {
		return false, err
	}
	found := false
	for _, entry := range entries {
		if entry.SHA != sha {
			continue
		}
		if !entry.OK {
			return false, nil
		}
		found = true
	}
	return found, nil
}

// Archive moves a task's artifact directory under the archive subdirectory.
// Artifacts of merged branches are retained for audit, not deleted.
func (a *Artifacts) Archive(taskID string) error {
	src := a.TaskDir(taskID)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return core.IOErr("checking artifact directory", err)
	}
	dstDir := filepath.Join(a.Dir, archiveSubdir)
	if err := os.MkdirAll(dstDir, 0o750); err != nil {
		return core.IOErr("creating archive directory", err)
	}
	dst := filepath.Join(dstDir, taskID)
	if err := os.Rename(src, dst); err != nil {
		return core.IOErr("archiving PR artifacts", err)
	}
	return nil
}
