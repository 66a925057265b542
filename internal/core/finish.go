package core

import (
	"strings"

	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// finishEmoji prefixes derived finish commit subjects.
const finishEmoji = "✅"

// FinishOptions carries the inputs for the finish operation.
type FinishOptions struct {
	// Comment is the required "Verified:"-prefixed structured comment.
	Comment string
	// Author attributes the transition and the comment.
	Author string
	// Force allows finishing an already-DONE task or skipping gates.
	Force bool
	// CommitHash pins the implementation commit explicitly; empty means
	// the current HEAD commit.
	CommitHash string
	// StatusCommit requests an auto-generated status commit.
	StatusCommit bool
	// DeriveCommit requests a commit whose subject derives from the
	// comment text. Composable with StatusCommit; each is independently
	// allow-listed by the guard.
	DeriveCommit bool
	// ConfirmStatusCommit satisfies the warn/confirm commit policies.
	ConfirmStatusCommit bool
}

// FinishResult is the outcome of one finished task.
type FinishResult struct {
	Task    *models.Task
	Warning string
}

// Finish marks one or more tasks DONE, recording the resolved
// implementation commit on each. Commit-generation flags require exactly
// one id.
func (l *Lifecycle) Finish(ids []string, opts FinishOptions) ([]*FinishResult, error) {
	if len(ids) == 0 {
		return nil, Usagef("at least one task id is required")
	}
	if len(ids) > 1 && (opts.StatusCommit || opts.DeriveCommit || opts.CommitHash != "") {
		return nil, Usagef("commit flags require exactly one task id")
	}
	if err := ValidateComment(opts.Comment, l.cfg.FinishComment); err != nil {
		return nil, err
	}

	results := make([]*FinishResult, 0, len(ids))
	for _, id := range ids {
		res, err := l.finishOne(id, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (l *Lifecycle) finishOne(id string, opts FinishOptions) (*FinishResult, error) {
	author := firstNonEmpty(opts.Author, fallbackAuthor)

	task, err := l.store.Get(id)
	if err != nil {
		return nil, err
	}
	from := task.Status
	to := models.StatusDone

	if from == models.StatusDone && !opts.Force {
		return nil, Validationf("task %s is already DONE", id)
	}
	if !IsTransitionAllowed(from, to) && !opts.Force {
		return nil, Validationf("transition %s -> %s is not allowed for task %s (use --force to override)", from, to, id)
	}
	if l.needsVerification(task) && task.Verification.State != models.VerifyOK && !opts.Force {
		return nil, Validationf("task %s requires verification before finish (verification is %s)", id, task.Verification.State)
	}

	commit, err := l.resolveCommit(opts.CommitHash)
	if err != nil {
		return nil, err
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
		t.Commit = commit
		t.Events = append(t.Events, l.statusEvent(author, from, to))
		t.Comments = append(t.Comments, models.Comment{Author: author, Body: opts.Comment})
		t.Events = append(t.Events, l.commentEvent(author, opts.Comment))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed && opts.StatusCommit {
		subject := statusCommitSubject(id, from, to)
		if err := l.commitViaGuard([]string{l.store.Path(id)}, subject); err != nil {
			return nil, err
		}
	}
	if changed && opts.DeriveCommit {
		subject := CommitSubjectFromComment(finishEmoji, id, opts.Comment)
		if err := l.commitViaGuard([]string{l.store.Path(id)}, subject); err != nil {
			return nil, err
		}
	}

	l.logEvent("task.finished", "finished task "+id, map[string]any{
		"id": id, "commit": commit.Hash, "author": author,
	})
	return &FinishResult{Task: updated, Warning: warning}, nil
}

// resolveCommit validates an explicit hash against the repository, or falls
// back to the current HEAD commit. Both require git.
func (l *Lifecycle) resolveCommit(explicit string) (*models.Commit, error) {
	if l.git == nil {
		return nil, Usagef("finishing a task requires a git repository to resolve the implementation commit")
	}
	ref := "HEAD"
	if explicit != "" {
		ref = explicit
	}
	hash, err := l.git.RevParse(ref)
	if err != nil {
		if explicit != "" {
			return nil, Validationf("commit %q not found in repository", explicit)
		}
		return nil, err
	}
	message, err := l.git.CommitMessage(hash)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, Validationf("commit %s has an empty message", hash)
	}
	return &models.Commit{Hash: hash, Message: message}, nil
}

// statusCommitSubject is the deterministic subject for a pure status
// commit.
func statusCommitSubject(id string, from, to models.Status) string {
	return finishEmoji + " " + TaskIDSuffix(id) + ": status " + string(from) + " -> " + string(to)
}
