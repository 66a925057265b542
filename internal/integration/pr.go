package integration

import (
	"github.com/valter-silva-au/agent-task-flow/internal/core"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// OpenPR records the branch/base pairing for a task and snapshots its
// diffstat. The branch defaults to the conventional task branch and the base
// to the currently checked-out branch.
func (e *Engine) OpenPR(taskID, branch, base string) (*models.PRMetadata, error) {
	task, err := e.backend.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	if branch == "" {
		branch = BranchNameForTask(task.ID)
	}
	if base == "" {
		base, err = e.git.CurrentBranch()
		if err != nil {
			return nil, err
		}
	}
	if !e.git.BranchExists(branch) {
		return nil, core.Gitf("branch %q does not exist", branch)
	}
	if !e.git.BranchExists(base) {
		return nil, core.Gitf("base branch %q does not exist", base)
	}

	meta := &models.PRMetadata{Branch: branch, Base: base}
	if err := e.art.WriteMetadata(task.ID, meta); err != nil {
		return nil, err
	}
	if err := e.refreshDiffstat(task.ID, base, branch); err != nil {
		return nil, err
	}

	if e.audit != nil {
		e.audit.Log("pr.opened", "opened PR for "+task.ID, map[string]any{
			"task": task.ID, "branch": branch, "base": base,
		})
	}
	return meta, nil
}

// UpdatePR refreshes the diffstat snapshot for a task's existing PR.
func (e *Engine) UpdatePR(taskID string) (*models.PRMetadata, error) {
	meta, err := e.art.LoadMetadata(taskID)
	if err != nil {
		return nil, err
	}
	base := meta.Base
	if base == "" {
		base, err = e.git.CurrentBranch()
		if err != nil {
			return nil, err
		}
	}
	if err := e.refreshDiffstat(taskID, base, meta.Branch); err != nil {
		return nil, err
	}

	if e.audit != nil {
		e.audit.Log("pr.updated", "updated PR for "+taskID, map[string]any{
			"task": taskID, "branch": meta.Branch, "base": base,
		})
	}
	return meta, nil
}

func (e *Engine) refreshDiffstat(taskID, base, branch string) error {
	stat, err := e.git.DiffStat(base, branch)
	if err != nil {
		return err
	}
	return e.art.WriteDiffstat(taskID, stat)
}

// Cleanup archives a merged branch's PR artifacts. History is retained
// under the archive directory, never deleted.
func (e *Engine) Cleanup(taskID string) error {
	if err := e.art.Archive(taskID); err != nil {
		return err
	}
	if e.audit != nil {
		e.audit.Log("pr.cleaned", "archived PR artifacts for "+taskID, map[string]any{"task": taskID})
	}
	return nil
}
