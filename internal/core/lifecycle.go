package core

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// Lifecycle coordinates the task state machines: it validates operation
// preconditions, mutates task records through the store, and optionally
// drives commits through the guard collaborator. One instance serves one
// invocation; there is no internal parallelism.
type Lifecycle struct {
	cfg     *models.Config
	store   TaskMutator
	backend TaskBackend
	git     GitOps
	guard   CommitGuard
	audit   AuditLogger
	idGen   TaskIDGenerator
	now     func() time.Time
}

// NewLifecycle wires a Lifecycle. git and guard may be nil when commit
// generation is not available (e.g. outside a repository); audit may be nil.
func NewLifecycle(cfg *models.Config, store TaskMutator, backend TaskBackend, git GitOps, guard CommitGuard, audit AuditLogger) *Lifecycle {
	return &Lifecycle{
		cfg:     cfg,
		store:   store,
		backend: backend,
		git:     git,
		guard:   guard,
		audit:   audit,
		idGen:   NewTaskIDGenerator(),
		now:     time.Now,
	}
}

// timestamp returns the canonical event timestamp.
func (l *Lifecycle) timestamp() string {
	return l.now().UTC().Format(time.RFC3339)
}

// logEvent writes to the audit log when one is configured.
func (l *Lifecycle) logEvent(eventType, message string, data map[string]any) {
	if l.audit != nil {
		l.audit.Log(eventType, message, data)
	}
}

// CreateTaskOpts carries the optional fields for task creation.
type CreateTaskOpts struct {
	Description string
	Priority    models.Priority
	Owner       string
	Tags        []string
	DependsOn   []string
	Verify      []string
}

// CreateTask mints a new task: sortable id, skeleton document containing
// every required section, pending sub-states, status TODO.
func (l *Lifecycle) CreateTask(title string, opts CreateTaskOpts) (*models.Task, error) {
	if title == "" {
		return nil, Usagef("a task title is required")
	}
	priority := opts.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !models.ValidPriorities[priority] {
		return nil, Usagef("priority %q is invalid, must be one of: low, normal, med, high", priority)
	}

	id, err := l.idGen.GenerateTaskID()
	if err != nil {
		return nil, IOErr("generating task id", err)
	}

	task := &models.Task{
		ID:           id,
		Title:        title,
		Description:  opts.Description,
		Status:       models.StatusTodo,
		Priority:     priority,
		Owner:        opts.Owner,
		Tags:         dedupe(opts.Tags),
		DependsOn:    opts.DependsOn,
		Verify:       opts.Verify,
		PlanApproval: models.PlanApproval{State: models.ApprovalPending},
		Verification: models.Verification{State: models.VerifyPending},
		DocVersion:   models.DocVersion,
		DocUpdatedAt: l.timestamp(),
		DocUpdatedBy: firstNonEmpty(opts.Owner, fallbackAuthor),
		Doc:          EnsureRequiredSections("", l.cfg.RequiredSections),
	}

	if err := l.store.Create(task); err != nil {
		return nil, err
	}
	l.logEvent("task.created", "created task "+id, map[string]any{"id": id, "title": title})
	return task, nil
}

// fallbackAuthor attributes mutations when no author was supplied.
const fallbackAuthor = "unknown"

// dedupe removes duplicate tags, preserving first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// checkDependencies partitions a task's dependencies into missing and
// incomplete sets. Both must be empty for an unforced start.
func (l *Lifecycle) checkDependencies(task *models.Task) (missing, incomplete []string) {
	for _, depID := range task.DependsOn {
		dep, err := l.backend.GetTask(depID)
		if err != nil {
			missing = append(missing, depID)
			continue
		}
		if dep.Status != models.StatusDone {
			incomplete = append(incomplete, depID)
		}
	}
	return missing, incomplete
}

// needsVerification reports whether the task's tags intersect the
// configured verify-required set.
func (l *Lifecycle) needsVerification(task *models.Task) bool {
	for _, tag := range l.cfg.VerifyRequiredTags {
		if task.HasTag(tag) {
			return true
		}
	}
	return false
}

// commitViaGuard stages the given paths and commits with subject, letting
// the guard veto the staged set first.
func (l *Lifecycle) commitViaGuard(paths []string, subject string) error {
	if l.git == nil || l.guard == nil {
		return Usagef("commit generation requires a git repository")
	}
	if err := l.git.AddPaths(paths); err != nil {
		return err
	}
	staged, err := l.git.StagedPaths()
	if err != nil {
		return err
	}
	if err := l.guard.Check(staged, l.cfg.CommitAllowlist, subject); err != nil {
		return err
	}
	return l.git.Commit(subject, nil)
}

// statusEvent builds a status audit entry.
func (l *Lifecycle) statusEvent(author string, from, to models.Status) models.Event {
	return models.Event{
		Type:   models.EventStatus,
		At:     l.timestamp(),
		Author: author,
		From:   string(from),
		To:     string(to),
	}
}

// commentEvent builds a comment audit entry.
func (l *Lifecycle) commentEvent(author, body string) models.Event {
	return models.Event{
		Type:   models.EventComment,
		At:     l.timestamp(),
		Author: author,
		Body:   body,
	}
}

// describeDeps renders the missing/incomplete dependency sets for error
// messages, keeping the two failure modes distinct.
func describeDeps(missing, incomplete []string) string {
	switch {
	case len(missing) > 0 && len(incomplete) > 0:
		return fmt.Sprintf("missing dependencies: %v; incomplete dependencies: %v", missing, incomplete)
	case len(missing) > 0:
		return fmt.Sprintf("missing dependencies: %v", missing)
	default:
		return fmt.Sprintf("incomplete dependencies: %v", incomplete)
	}
}
