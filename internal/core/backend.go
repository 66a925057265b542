package core

import (
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// TaskBackend is the pluggable task source the core reads and writes
// through. The file-backed implementation lives in the storage package;
// remote backends (issue-tracker sync) implement the same capability set.
// Defining it here keeps core independent of the storage package.
type TaskBackend interface {
	ListTasks() ([]*models.Task, error)
	GetTask(id string) (*models.Task, error)
	WriteTask(task *models.Task) error
}

// DocBackend is the optional capability for backends that store the
// markdown document separately from the structured fields.
type DocBackend interface {
	GetTaskDoc(id string) (string, error)
	SetTaskDoc(id, text string) error
}

// TaskMutator is the subset of the storage TaskStore the lifecycle
// operations need: read a task, mutate it under optimistic concurrency, and
// locate its record file for staging.
type TaskMutator interface {
	Get(id string) (*models.Task, error)
	Update(id string, fn func(*models.Task) error) (changed bool, task *models.Task, err error)
	Create(task *models.Task) error
	Path(id string) string
}

// GitOps is the narrow git capability the lifecycle operations use for
// commit resolution and lifecycle-driven commits. The integration package
// provides the exec-backed implementation.
type GitOps interface {
	RevParse(ref string) (string, error)
	CommitMessage(ref string) (string, error)
	AddPaths(paths []string) error
	StagedPaths() ([]string, error)
	Commit(subject string, env map[string]string) error
}

// CommitGuard is the external check-then-commit gate: it inspects the
// staged paths against an allowlist before a lifecycle-driven commit is
// made. Implementations return a usage or validation error on deny.
type CommitGuard interface {
	Check(stagedPaths []string, allowlist []string, subject string) error
}

// AuditLogger receives one entry per completed lifecycle operation. The
// observability package provides the JSONL-backed implementation.
type AuditLogger interface {
	Log(eventType, message string, data map[string]any)
}
