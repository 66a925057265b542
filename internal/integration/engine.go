package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/valter-silva-au/agent-task-flow/internal/core"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// Strategy selects how a task branch is merged into its base.
type Strategy string

const (
	StrategySquash Strategy = "squash"
	StrategyMerge  Strategy = "merge"
	StrategyRebase Strategy = "rebase"
)

// ValidStrategies is the set of allowed merge strategies.
var ValidStrategies = map[Strategy]bool{
	StrategySquash: true,
	StrategyMerge:  true,
	StrategyRebase: true,
}

// Environment markers passed to integration commits. Commit hooks can use
// them to allow base-branch writes while still rejecting task-artifact
// writes from the same commit.
const (
	envAllowBaseWrite = "ATF_ALLOW_BASE_WRITE"
	envAllowTaskWrite = "ATF_ALLOW_TASK_WRITE"
)

// CommandRunner executes one verification command in a directory and
// reports its combined output and success. Implementations must not return
// an error for a non-zero exit; that is the ok=false case.
type CommandRunner interface {
	Run(dir, command string) (output string, ok bool, err error)
}

// ShellRunner runs verification commands through the system shell so
// pipelines and redirections in configured commands work.
type ShellRunner struct{}

// Run executes command via `sh -c` in dir.
func (ShellRunner) Run(dir, command string) (string, bool, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(output))
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			return text, false, nil
		}
		return text, false, core.IOErr("running "+command, err)
	}
	return text, true, nil
}

// BranchNameForTask is the conventional branch a task's work lands on.
func BranchNameForTask(taskID string) string {
	return "task/" + taskID
}

// Engine merges a task branch into its base under verification and
// single-writer guarantees. It loads the task read-only through the backend
// and never writes task records itself; updated task metadata flows back
// through the caller.
type Engine struct {
	cfg     *models.Config
	git     GitPrimitives
	backend core.TaskBackend
	art     *Artifacts
	runner  CommandRunner
	audit   core.AuditLogger
	now     func() time.Time
}

// NewEngine wires an integration engine. runner and audit may be nil; a nil
// runner gets the shell-backed default.
func NewEngine(cfg *models.Config, git GitPrimitives, backend core.TaskBackend, art *Artifacts, runner CommandRunner, audit core.AuditLogger) *Engine {
	if runner == nil {
		runner = ShellRunner{}
	}
	return &Engine{
		cfg:     cfg,
		git:     git,
		backend: backend,
		art:     art,
		runner:  runner,
		audit:   audit,
		now:     time.Now,
	}
}

// IntegrateOptions carries the per-invocation inputs for Integrate.
type IntegrateOptions struct {
	TaskID   string
	Strategy Strategy

	// Branch overrides branch resolution when non-empty.
	Branch string

	// Base overrides the base branch. BaseGiven distinguishes "not passed"
	// from an explicit blank, which is rejected.
	Base      string
	BaseGiven bool

	// ForceVerify re-runs verification even when the verify-state cache
	// says the branch head is already verified.
	ForceVerify bool
}

// IntegrateResult reports the outcome of a successful integration.
type IntegrateResult struct {
	Branch    string
	Base      string
	MergeSHA  string
	BranchSHA string

	// NewEntries are verification transcript entries produced by this run,
	// for the caller to append to the task's Verification section.
	NewEntries []models.VerificationEntry

	// VerificationSkipped is true when the verify-state cache matched and
	// verification commands were not re-run.
	VerificationSkipped bool
}

// integration is the resolved, precondition-checked state of one attempt.
type integration struct {
	task   *models.Task
	meta   *models.PRMetadata
	branch string
	base   string
	head   string
}

// Integrate merges the task's branch into the base branch using the chosen
// strategy. Preconditions run before any side effect; every destructive git
// step is paired with a rollback so a failed attempt leaves the base branch
// exactly where it started.
func (e *Engine) Integrate(opts IntegrateOptions) (*IntegrateResult, error) {
	if !ValidStrategies[opts.Strategy] {
		return nil, core.Usagef("strategy %q is invalid, must be one of: squash, merge, rebase", opts.Strategy)
	}

	in, err := e.prepare(opts)
	if err != nil {
		return nil, err
	}

	// Rebase rewrites the branch head, so its verification runs after the
	// rebase against the new hash instead of here.
	var entries []models.VerificationEntry
	var skipped bool
	if opts.Strategy != StrategyRebase {
		entries, skipped, err = e.ensureVerified(in, opts.ForceVerify)
		if err != nil {
			return nil, err
		}
	}

	headBefore, err := e.git.RevParse("HEAD")
	if err != nil {
		return nil, err
	}

	result := &IntegrateResult{
		Branch:              in.branch,
		Base:                in.base,
		BranchSHA:           in.head,
		NewEntries:          entries,
		VerificationSkipped: skipped,
	}

	switch opts.Strategy {
	case StrategySquash:
		err = e.squash(in, headBefore)
	case StrategyMerge:
		err = e.mergeNoFF(in)
	case StrategyRebase:
		err = e.rebaseFF(in, headBefore, opts.ForceVerify, result)
	}
	if err != nil {
		return nil, err
	}

	mergeSHA, err := e.git.RevParse("HEAD")
	if err != nil {
		return nil, err
	}
	result.MergeSHA = mergeSHA

	if e.audit != nil {
		e.audit.Log("pr.integrated", "integrated "+in.branch+" into "+in.base, map[string]any{
			"task":     in.task.ID,
			"branch":   in.branch,
			"base":     in.base,
			"strategy": string(opts.Strategy),
			"merge":    mergeSHA,
		})
	}
	return result, nil
}

// prepare runs every precondition in order, failing fast with no side
// effects: workflow mode, task sub-states, clean tree, base/branch
// resolution and existence, artifact consistency, and the single-writer
// check on the shared index path.
func (e *Engine) prepare(opts IntegrateOptions) (*integration, error) {
	if e.cfg.WorkflowMode != models.WorkflowBranch {
		return nil, core.Validationf("integration requires workflow.mode branch, configured mode is %q", e.cfg.WorkflowMode)
	}

	task, err := e.backend.GetTask(opts.TaskID)
	if err != nil {
		return nil, err
	}
	if e.cfg.RequirePlanApproval && task.PlanApproval.State != models.ApprovalApproved {
		return nil, core.Validationf("task %s plan approval is %s, integration requires approved", task.ID, task.PlanApproval.State)
	}
	if task.Verification.State == models.VerifyNeedsRework {
		return nil, core.Validationf("task %s verification state is needs_rework, rework must be finished first", task.ID)
	}

	if err := e.requireCleanTree(); err != nil {
		return nil, err
	}

	if opts.BaseGiven && strings.TrimSpace(opts.Base) == "" {
		return nil, core.Usagef("--base must not be blank")
	}

	current, err := e.git.CurrentBranch()
	if err != nil {
		return nil, err
	}

	branch, meta, err := e.resolveBranch(opts, task.ID)
	if err != nil {
		return nil, err
	}

	base := firstNonBlank(opts.Base, meta.Base, current)
	if !e.git.BranchExists(base) {
		return nil, core.Gitf("base branch %q does not exist", base)
	}
	if base != current {
		return nil, core.Gitf("integration runs from the base branch: checked out %q, base is %q", current, base)
	}
	if !e.git.BranchExists(branch) {
		return nil, core.Gitf("branch %q does not exist", branch)
	}

	if err := e.checkArtifacts(task.ID, branch, meta); err != nil {
		return nil, err
	}

	changed, err := e.git.DiffNames(base, branch)
	if err != nil {
		return nil, err
	}
	for _, path := range changed {
		if path == e.cfg.IndexPath {
			return nil, core.Gitf("single-writer violation: branch %q modifies the task index %s, only the base branch may", branch, e.cfg.IndexPath)
		}
	}

	head, err := e.git.RevParse("refs/heads/" + branch)
	if err != nil {
		return nil, err
	}

	return &integration{task: task, meta: meta, branch: branch, base: base, head: head}, nil
}

// requireCleanTree rejects the run when anything is staged or tracked files
// carry unstaged modifications.
func (e *Engine) requireCleanTree() error {
	staged, err := e.git.StagedPaths()
	if err != nil {
		return err
	}
	unstaged, err := e.git.UnstagedTrackedPaths()
	if err != nil {
		return err
	}
	if len(staged) > 0 || len(unstaged) > 0 {
		return core.Validationf("working tree is not clean: commit or stash local changes first")
	}
	return nil
}

// resolveBranch resolves the target branch: explicit flag, then the local PR
// metadata file, then the metadata blob committed on the conventional task
// branch itself.
func (e *Engine) resolveBranch(opts IntegrateOptions, taskID string) (string, *models.PRMetadata, error) {
	if opts.Branch != "" {
		meta, err := e.loadMetadataAnywhere(opts.Branch, taskID)
		if err != nil {
			return "", nil, err
		}
		return opts.Branch, meta, nil
	}

	meta, err := e.art.LoadMetadata(taskID)
	if err == nil {
		return meta.Branch, meta, nil
	}
	if !core.IsCategory(err, core.CategoryIO) {
		return "", nil, err
	}

	candidate := BranchNameForTask(taskID)
	if !e.git.BranchExists(candidate) {
		return "", nil, core.Usagef("cannot resolve a branch for task %s: pass --branch or open a PR first", taskID)
	}
	meta, err = e.art.LoadMetadataFromBranch(e.git, candidate, taskID)
	if err != nil {
		return "", nil, err
	}
	return meta.Branch, meta, nil
}

// loadMetadataAnywhere reads PR metadata from the working tree, falling back
// to the blob committed on the branch.
func (e *Engine) loadMetadataAnywhere(branch, taskID string) (*models.PRMetadata, error) {
	meta, err := e.art.LoadMetadata(taskID)
	if err == nil {
		return meta, nil
	}
	if !core.IsCategory(err, core.CategoryIO) {
		return nil, err
	}
	return e.art.LoadMetadataFromBranch(e.git, branch, taskID)
}

// checkArtifacts verifies the PR artifacts are present and internally
// consistent before anything destructive runs.
func (e *Engine) checkArtifacts(taskID, branch string, meta *models.PRMetadata) error {
	if meta.Branch != branch {
		return core.Validationf("PR metadata for task %s names branch %q, resolved branch is %q", taskID, meta.Branch, branch)
	}
	if _, err := os.Stat(e.art.DiffstatPath(taskID)); err != nil {
		return core.Validationf("PR diffstat artifact for task %s is missing: run pr update first", taskID)
	}
	if meta.LastVerifiedSHA != "" {
		verified, err := e.art.TranscriptVerified(taskID, meta.LastVerifiedSHA)
		if err != nil {
			return err
		}
		if !verified {
			return core.Validationf("PR metadata for task %s records last_verified_sha %s, but the transcript has no passing run for it", taskID, meta.LastVerifiedSHA)
		}
	}
	return nil
}

// verificationCurrent reports whether the verify-state cache covers head: the
// recorded last-verified hash matches and the transcript agrees.
func (e *Engine) verificationCurrent(in *integration, head string) (bool, error) {
	if in.meta.LastVerifiedSHA != head {
		return false, nil
	}
	return e.art.TranscriptVerified(in.task.ID, head)
}

// ensureVerified applies the verify-state cache for the branch's current
// head and, on a miss, runs the task's verification commands in a throwaway
// worktree of the branch. Entries are appended to the PR transcript whether
// or not they pass; a failing command aborts the integration before any
// merge side effect.
func (e *Engine) ensureVerified(in *integration, force bool) ([]models.VerificationEntry, bool, error) {
	if len(in.task.Verify) == 0 {
		return nil, false, nil
	}
	if !force {
		current, err := e.verificationCurrent(in, in.head)
		if err != nil {
			return nil, false, err
		}
		if current {
			return nil, true, nil
		}
	}

	entries, err := e.verifyInWorktree(in, in.branch, in.head)
	if err != nil {
		return nil, false, err
	}
	return entries, false, nil
}

// verifyInWorktree checks the branch out into a temporary worktree, runs
// every verification command there, records the transcript, and advances
// last_verified_sha when all commands pass.
func (e *Engine) verifyInWorktree(in *integration, branch, head string) ([]models.VerificationEntry, error) {
	dir, err := os.MkdirTemp("", "atf-verify-")
	if err != nil {
		return nil, core.IOErr("creating verification worktree directory", err)
	}
	wt := filepath.Join(dir, branch)
	if err := e.git.WorktreeAdd(wt, branch); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	defer func() {
		_ = e.git.WorktreeRemove(wt)
		os.RemoveAll(dir)
	}()

	entries, err := e.runVerification(wt, in.task.Verify, head)
	if appendErr := e.art.AppendTranscript(in.task.ID, entries); appendErr != nil {
		return entries, appendErr
	}
	if err != nil {
		return entries, err
	}

	in.meta.LastVerifiedSHA = head
	if err := e.art.WriteMetadata(in.task.ID, in.meta); err != nil {
		return entries, err
	}
	return entries, nil
}

// runVerification executes the commands in dir, tagging each transcript
// entry with the commit hash it verified.
func (e *Engine) runVerification(dir string, commands []string, sha string) ([]models.VerificationEntry, error) {
	var entries []models.VerificationEntry
	var failed []string
	for _, command := range commands {
		output, ok, err := e.runner.Run(dir, command)
		if err != nil {
			return entries, err
		}
		entries = append(entries, models.VerificationEntry{
			SHA:     sha,
			Command: command,
			OK:      ok,
			Output:  core.TruncateOutput(output),
			At:      e.now().UTC().Format(time.RFC3339),
		})
		if !ok {
			failed = append(failed, command)
		}
	}
	if len(failed) > 0 {
		return entries, core.Validationf("verification failed for %s: %s", sha, strings.Join(failed, ", "))
	}
	return entries, nil
}

// squash stages the branch's changes with merge --squash and commits them as
// a single commit on the base. Any failure hard-resets to the snapshot.
func (e *Engine) squash(in *integration, headBefore string) error {
	if err := e.git.MergeSquash(in.branch); err != nil {
		e.rollbackHard(headBefore)
		return err
	}

	staged, err := e.git.StagedPaths()
	if err != nil {
		e.rollbackHard(headBefore)
		return err
	}
	if len(staged) == 0 {
		// The branch is already fully represented in base.
		e.rollbackHard(headBefore)
		return core.Validationf("nothing to integrate: branch %q introduces no changes over %q", in.branch, in.base)
	}

	subject, err := e.squashSubject(in)
	if err != nil {
		e.rollbackHard(headBefore)
		return err
	}

	env := map[string]string{
		envAllowBaseWrite: "1",
		envAllowTaskWrite: "0",
	}
	if err := e.git.Commit(subject, env); err != nil {
		e.rollbackHard(headBefore)
		return err
	}
	return nil
}

// squashSubject reuses the branch's last commit subject when it already
// follows the structured subject policy, else synthesizes a generic one.
func (e *Engine) squashSubject(in *integration) (string, error) {
	message, err := e.git.CommitMessage("refs/heads/" + in.branch)
	if err != nil {
		return "", err
	}
	subject := message
	if idx := strings.IndexByte(subject, '\n'); idx >= 0 {
		subject = subject[:idx]
	}
	subject = strings.TrimSpace(subject)
	if core.SubjectMatchesPolicy(subject, in.task.ID) {
		return subject, nil
	}
	return "integrate: squash " + in.branch, nil
}

// mergeNoFF merges the branch with an explicit merge commit. A failed
// --no-ff merge leaves an abortable merge state, so rollback is merge
// --abort rather than a hard reset.
func (e *Engine) mergeNoFF(in *integration) error {
	if err := e.git.MergeNoFF(in.branch, "integrate: merge "+in.branch); err != nil {
		_ = e.git.MergeAbort()
		return err
	}
	return nil
}

// rebaseFF rebases the branch onto base inside its own worktree, re-runs
// verification against the rewritten head when the cache no longer covers
// it, then fast-forwards the base.
func (e *Engine) rebaseFF(in *integration, headBefore string, force bool, result *IntegrateResult) error {
	dir, err := os.MkdirTemp("", "atf-rebase-")
	if err != nil {
		return core.IOErr("creating rebase worktree directory", err)
	}
	wt := filepath.Join(dir, in.branch)
	if err := e.git.WorktreeAdd(wt, in.branch); err != nil {
		os.RemoveAll(dir)
		return err
	}
	defer func() {
		_ = e.git.WorktreeRemove(wt)
		os.RemoveAll(dir)
	}()

	if err := e.git.Rebase(wt, in.base); err != nil {
		_ = e.git.RebaseAbort(wt)
		return err
	}

	newHead, err := e.git.RevParse("refs/heads/" + in.branch)
	if err != nil {
		return err
	}
	result.BranchSHA = newHead

	// Rebasing rewrites the head hash, so the pre-merge verify-state cache
	// no longer applies unless nothing actually changed.
	if len(in.task.Verify) > 0 {
		current := false
		if !force && newHead == in.head {
			current, err = e.verificationCurrent(in, newHead)
			if err != nil {
				return err
			}
		}
		if current {
			result.VerificationSkipped = true
		} else {
			entries, err := e.runVerification(wt, in.task.Verify, newHead)
			if appendErr := e.art.AppendTranscript(in.task.ID, entries); appendErr != nil {
				return appendErr
			}
			result.NewEntries = append(result.NewEntries, entries...)
			if err != nil {
				return err
			}
			in.meta.LastVerifiedSHA = newHead
			if err := e.art.WriteMetadata(in.task.ID, in.meta); err != nil {
				return err
			}
		}
	}

	if err := e.git.MergeFFOnly(in.branch); err != nil {
		e.rollbackHard(headBefore)
		return err
	}
	return nil
}

// rollbackHard restores the base branch to its pre-attempt snapshot. The
// original error is what callers need to see, so a failed reset is not
// allowed to mask it.
func (e *Engine) rollbackHard(headBefore string) {
	_ = e.git.ResetHard(headBefore)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
