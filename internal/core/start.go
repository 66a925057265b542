package core

import (
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// startEmoji prefixes auto-generated start commit subjects.
const startEmoji = "\U0001F680"

// StartOptions carries the inputs for the start operation.
type StartOptions struct {
	// Comment is the required structured comment; it must satisfy the
	// configured start-comment policy.
	Comment string
	// Author attributes the transition and the comment.
	Author string
	// Force bypasses the transition table and dependency checks.
	Force bool
	// StatusCommit requests an auto-generated commit for the transition.
	StatusCommit bool
	// ConfirmStatusCommit satisfies the warn/confirm commit policies.
	ConfirmStatusCommit bool
}

// StartResult is the outcome of a start operation.
type StartResult struct {
	Task *models.Task
	// Warning is non-empty under the warn status-commit policy.
	Warning string
}

// Start transitions a task to DOING. Preconditions are checked before any
// mutation: the structured comment, the transition table, plan approval or
// the verify-steps document gate, and dependency readiness.
func (l *Lifecycle) Start(id string, opts StartOptions) (*StartResult, error) {
	if err := ValidateComment(opts.Comment, l.cfg.StartComment); err != nil {
		return nil, err
	}
	author := firstNonEmpty(opts.Author, fallbackAuthor)

	task, err := l.store.Get(id)
	if err != nil {
		return nil, err
	}
	from := task.Status
	to := models.StatusDoing

	if !IsTransitionAllowed(from, to) && !opts.Force {
		return nil, Validationf("transition %s -> %s is not allowed for task %s (use --force to override)", from, to, id)
	}

	if l.cfg.RequirePlanApproval {
		if task.PlanApproval.State != models.ApprovalApproved {
			return nil, Validationf("task %s requires an approved plan before start (plan approval is %s)", id, task.PlanApproval.State)
		}
	} else if l.needsVerification(task) && !SectionFilled(task.Doc, SectionVerifySteps) {
		return nil, Validationf("task %s requires a filled %q section before start", id, SectionVerifySteps)
	}

	if missing, incomplete := l.checkDependencies(task); (len(missing) > 0 || len(incomplete) > 0) && !opts.Force {
		return nil, Validationf("task %s cannot start: %s", id, describeDeps(missing, incomplete))
	}

	var warning string
	if opts.StatusCommit {
		warning, err = CheckStatusCommitGate(l.cfg.StatusCommit, from, to, opts.ConfirmStatusCommit)
		if err != nil {
			return nil, err
		}
	}

	changed, updated, err := l.store.Update(id, func(t *models.Task) error {
		t.Status = to
		t.Events = append(t.Events, l.statusEvent(author, from, to))
		t.Comments = append(t.Comments, models.Comment{Author: author, Body: opts.Comment})
		t.Events = append(t.Events, l.commentEvent(author, opts.Comment))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed && opts.StatusCommit {
		subject := CommitSubjectFromComment(startEmoji, id, opts.Comment)
		if err := l.commitViaGuard([]string{l.store.Path(id)}, subject); err != nil {
			return nil, err
		}
	}

	l.logEvent("task.started", "started task "+id, map[string]any{
		"id": id, "from": string(from), "to": string(to), "author": author,
	})
	return &StartResult{Task: updated, Warning: warning}, nil
}
