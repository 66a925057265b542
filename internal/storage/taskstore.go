package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valter-silva-au/agent-task-flow/internal/core"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
	"gopkg.in/yaml.v3"
)

// storeRetryLimit bounds the silent retry on concurrent modification.
// Exactly one: a second collision surfaces a concurrency error and the
// caller re-issues the whole command.
const storeRetryLimit = 1

// fallbackUpdatedBy is stamped into doc_updated_by when no author can be
// resolved from the mutation, the comments, the record, or the owner.
const fallbackUpdatedBy = "unknown"

// cachedRecord pairs a parsed record with the file state it was read from.
type cachedRecord struct {
	text  string
	rec   *Record
	task  *models.Task
	mtime time.Time
}

// TaskStore is the file-backed task repository. Each task is one file,
// <dir>/<id>.md. Updates are read-modify-write with mtime staleness
// detection; the record file is the unit of mutual exclusion.
type TaskStore struct {
	dir   string
	now   func() time.Time
	cache map[string]*cachedRecord
}

// NewTaskStore creates a store over the given task directory.
func NewTaskStore(dir string) *TaskStore {
	return &TaskStore{
		dir:   dir,
		now:   time.Now,
		cache: make(map[string]*cachedRecord),
	}
}

// Path returns the record file path for a task id.
func (s *TaskStore) Path(id string) string {
	return filepath.Join(s.dir, id+".md")
}

// load reads and parses the record for id, refreshing the per-store cache.
func (s *TaskStore) load(id string) (*cachedRecord, error) {
	path := s.Path(id)
	info, err := os.Stat(path)
	if err != nil {
		return nil, core.IOErr("reading task record "+path, err)
	}
	if cached, ok := s.cache[id]; ok && cached.mtime.Equal(info.ModTime()) {
		return cached, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.IOErr("reading task record "+path, err)
	}
	rec, err := ParseRecord(string(data))
	if err != nil {
		return nil, core.Validationf("task record %s: %v", path, err)
	}
	task, err := rec.Task()
	if err != nil {
		return nil, core.Validationf("task record %s: %v", path, err)
	}

	cached := &cachedRecord{text: string(data), rec: rec, task: task, mtime: info.ModTime()}
	s.cache[id] = cached
	return cached, nil
}

// Get returns the current task for id.
func (s *TaskStore) Get(id string) (*models.Task, error) {
	cached, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return cached.task.Clone(), nil
}

// Create writes a brand-new task record. It fails if the record already
// exists.
func (s *TaskStore) Create(task *models.Task) error {
	path := s.Path(task.ID)
	if _, err := os.Stat(path); err == nil {
		return core.Validationf("task %s already exists", task.ID)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return core.IOErr("creating task directory "+s.dir, err)
	}

	stamped := task.Clone()
	stamped.DocVersion = models.DocVersion
	if stamped.DocUpdatedAt == "" {
		stamped.DocUpdatedAt = s.now().UTC().Format(time.RFC3339)
	}
	if stamped.DocUpdatedBy == "" {
		stamped.DocUpdatedBy = resolveUpdatedBy(stamped, "")
	}

	rec, err := NewRecord(stamped)
	if err != nil {
		return core.Validationf("task %s: %v", task.ID, err)
	}
	text, err := rec.Render()
	if err != nil {
		return core.Validationf("task %s: %v", task.ID, err)
	}
	return s.writeAtomic(path, text)
}

// errStale signals a concurrent external modification between read and
// write; the update sequence is retried from the top.
var errStale = errors.New("task record changed underfoot")

// Update applies fn to the task under optimistic concurrency: read with
// mtime token, mutate a copy, merge frontmatter and document over the
// on-disk record, re-stat, and write atomically. A staleness collision
// retries the whole sequence exactly once; a second collision surfaces a
// concurrency error.
func (s *TaskStore) Update(id string, fn func(*models.Task) error) (bool, *models.Task, error) {
	var changed bool
	var task *models.Task

	attempt := func() error {
		var err error
		changed, task, err = s.updateOnce(id, fn)
		if errors.Is(err, errStale) {
			delete(s.cache, id)
			return err // retryable
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, storeRetryLimit)
	if err := backoff.Retry(attempt, policy); err != nil {
		if errors.Is(err, errStale) {
			return false, nil, core.Concurrencyf("task %s was modified concurrently; re-run the command", id)
		}
		return false, nil, err
	}
	return changed, task, nil
}

// updateOnce performs one read-modify-write pass, returning errStale if the
// file changed between the read and the write attempt.
func (s *TaskStore) updateOnce(id string, fn func(*models.Task) error) (bool, *models.Task, error) {
	cached, err := s.load(id)
	if err != nil {
		return false, nil, err
	}
	readMtime := cached.mtime

	proposed := cached.task.Clone()
	if err := fn(proposed); err != nil {
		return false, nil, err
	}

	merged, err := s.mergeRecord(cached, proposed)
	if err != nil {
		return false, nil, err
	}
	text, err := merged.Render()
	if err != nil {
		return false, nil, core.Validationf("task %s: %v", id, err)
	}

	if text == cached.text {
		task, err := merged.Task()
		if err != nil {
			return false, nil, core.Validationf("task %s: %v", id, err)
		}
		return false, task, nil
	}

	// Re-stat: a different mtime means a concurrent external writer.
	info, err := os.Stat(s.Path(id))
	if err != nil {
		return false, nil, core.IOErr("re-checking task record "+s.Path(id), err)
	}
	if !info.ModTime().Equal(readMtime) {
		return false, nil, errStale
	}

	if err := s.writeAtomic(s.Path(id), text); err != nil {
		return false, nil, err
	}
	delete(s.cache, id)

	task, err := merged.Task()
	if err != nil {
		return false, nil, core.Validationf("task %s: %v", id, err)
	}
	return true, task, nil
}

// mergeRecord builds the next on-disk record: proposed frontmatter merged
// over the existing mapping (unknown keys preserved), the proposed document
// merged into the existing body section-by-section when it was touched, and
// the document metadata stamped.
func (s *TaskStore) mergeRecord(cached *cachedRecord, proposed *models.Task) (*Record, error) {
	merged := &Record{
		frontmatter: cloneNode(cached.rec.frontmatter),
		Body:        cached.rec.Body,
	}

	docTouched := proposed.Doc != cached.task.Doc
	if docTouched {
		merged.Body = core.MergeSections(cached.rec.Body, proposed.Doc)
	}

	proposed.DocVersion = models.DocVersion
	proposed.Doc = merged.Body

	// Stamps follow every mutation, status and comment changes included,
	// not just document edits. A no-op mutation leaves them untouched.
	mutated := !reflect.DeepEqual(proposed, cached.task)
	if mutated || proposed.DocUpdatedAt == "" {
		proposed.DocUpdatedAt = s.now().UTC().Format(time.RFC3339)
		explicit := ""
		if proposed.DocUpdatedBy != cached.task.DocUpdatedBy {
			explicit = proposed.DocUpdatedBy
		}
		proposed.DocUpdatedBy = resolveUpdatedBy(proposed, explicit)
	}

	if err := merged.SetTask(proposed); err != nil {
		return nil, fmt.Errorf("merging task %s frontmatter: %w", proposed.ID, err)
	}
	return merged, nil
}

// resolveUpdatedBy picks the doc_updated_by value: explicit, else the last
// comment author, else the existing valid value, else the owner, else the
// fallback sentinel.
func resolveUpdatedBy(task *models.Task, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if author := task.LastCommentAuthor(); author != "" {
		return author
	}
	if task.DocUpdatedBy != "" {
		return task.DocUpdatedBy
	}
	if task.Owner != "" {
		return task.Owner
	}
	return fallbackUpdatedBy
}

// writeAtomic writes text via a temp file and rename so a crash mid-write
// cannot corrupt the record.
func (s *TaskStore) writeAtomic(path, text string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return core.IOErr("creating temp file for "+path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return core.IOErr("writing temp file for "+path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return core.IOErr("closing temp file for "+path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return core.IOErr("replacing "+path, err)
	}
	return nil
}

// cloneNode deep-copies a yaml node tree.
func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	dup := *n
	dup.Content = make([]*yaml.Node, len(n.Content))
	for i, child := range n.Content {
		dup.Content[i] = cloneNode(child)
	}
	return &dup
}
