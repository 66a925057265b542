package storage

import (
	"os"
	"sort"
	"strings"

	"github.com/valter-silva-au/agent-task-flow/internal/core"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// FileBackend implements the core TaskBackend capability set over the
// file-backed TaskStore. One task record file per id under the store
// directory.
type FileBackend struct {
	store *TaskStore
}

// NewFileBackend wraps a TaskStore as a TaskBackend.
func NewFileBackend(store *TaskStore) *FileBackend {
	return &FileBackend{store: store}
}

// ListTasks loads every task record in the store directory, sorted by id.
// Task ids sort chronologically, so this is also creation order.
func (b *FileBackend) ListTasks() ([]*models.Task, error) {
	entries, err := os.ReadDir(b.store.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.IOErr("listing task directory "+b.store.dir, err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".md"))
	}
	sort.Strings(ids)

	tasks := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		task, err := b.store.Get(id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// GetTask returns the task for id.
func (b *FileBackend) GetTask(id string) (*models.Task, error) {
	return b.store.Get(id)
}

// WriteTask persists the task, creating the record if it does not exist.
func (b *FileBackend) WriteTask(task *models.Task) error {
	if _, err := os.Stat(b.store.Path(task.ID)); os.IsNotExist(err) {
		return b.store.Create(task)
	}
	_, _, err := b.store.Update(task.ID, func(current *models.Task) error {
		*current = *task.Clone()
		return nil
	})
	return err
}

// GetTaskDoc returns the markdown body of the task record.
func (b *FileBackend) GetTaskDoc(id string) (string, error) {
	task, err := b.store.Get(id)
	if err != nil {
		return "", err
	}
	return task.Doc, nil
}

// SetTaskDoc replaces the task's document body.
func (b *FileBackend) SetTaskDoc(id, text string) error {
	_, _, err := b.store.Update(id, func(task *models.Task) error {
		task.Doc = text
		return nil
	})
	return err
}
