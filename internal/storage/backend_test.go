package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

func TestFileBackend_ListTasksSortedByID(t *testing.T) {
	store := newTestStore(t)
	backend := NewFileBackend(store)
	seedStoreTask(t, store, "ZZ99ZZ")
	seedStoreTask(t, store, "AB12CD")

	// Stray files in the task directory are not task records.
	if err := os.WriteFile(filepath.Join(store.dir, "README.txt"), []byte("notes"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(store.dir, ".hidden.md"), []byte("tmp"), 0o600); err != nil {
		t.Fatal(err)
	}

	tasks, err := backend.ListTasks()
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d", len(tasks))
	}
	if tasks[0].ID != "AB12CD" || tasks[1].ID != "ZZ99ZZ" {
		t.Errorf("order = %s, %s", tasks[0].ID, tasks[1].ID)
	}
}

func TestFileBackend_ListTasksMissingDirIsEmpty(t *testing.T) {
	backend := NewFileBackend(NewTaskStore(filepath.Join(t.TempDir(), "absent")))
	tasks, err := backend.ListTasks()
	if err != nil || tasks != nil {
		t.Fatalf("got %v, %v; want empty, nil", tasks, err)
	}
}

func TestFileBackend_WriteTaskCreatesThenUpdates(t *testing.T) {
	store := newTestStore(t)
	backend := NewFileBackend(store)

	task := &models.Task{ID: "AB12CD", Title: "T", Status: models.StatusTodo}
	if err := backend.WriteTask(task); err != nil {
		t.Fatalf("WriteTask(create): %v", err)
	}

	task.Status = models.StatusDoing
	if err := backend.WriteTask(task); err != nil {
		t.Fatalf("WriteTask(update): %v", err)
	}

	got, err := backend.GetTask("AB12CD")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusDoing {
		t.Errorf("status = %s", got.Status)
	}
}

func TestFileBackend_DocRoundTrip(t *testing.T) {
	store := newTestStore(t)
	backend := NewFileBackend(store)
	seedStoreTask(t, store, "AB12CD")

	if err := backend.SetTaskDoc("AB12CD", "## Goal\n\nRewritten.\n"); err != nil {
		t.Fatalf("SetTaskDoc: %v", err)
	}
	doc, err := backend.GetTaskDoc("AB12CD")
	if err != nil {
		t.Fatalf("GetTaskDoc: %v", err)
	}
	if doc != "## Goal\n\nRewritten.\n" {
		t.Errorf("doc = %q", doc)
	}
}
