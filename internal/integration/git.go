// Package integration contains the git-facing side of the system: the
// GitPrimitives abstraction over the git CLI, the PR artifact store, the
// commit allowlist guard, and the integration engine that merges a task
// branch into its base under verification and single-writer guarantees.
package integration

import (
	"os"
	"os/exec"
	"strings"

	"github.com/valter-silva-au/agent-task-flow/internal/core"
)

// GitPrimitives is the narrow operation set the engine needs from a git
// repository. Keeping it an interface makes the engine's rollback logic
// unit-testable against a fake without a real repository.
type GitPrimitives interface {
	CurrentBranch() (string, error)
	BranchExists(name string) bool
	RevParse(ref string) (string, error)
	CommitMessage(ref string) (string, error)
	DiffNames(a, b string) ([]string, error)
	DiffStat(a, b string) (string, error)

	MergeSquash(branch string) error
	MergeNoFF(branch, subject string) error
	MergeFFOnly(branch string) error
	MergeAbort() error
	ResetHard(ref string) error

	Rebase(dir, onto string) error
	RebaseAbort(dir string) error

	AddPaths(paths []string) error
	StagedPaths() ([]string, error)
	UnstagedTrackedPaths() ([]string, error)
	Commit(subject string, env map[string]string) error

	WorktreeAdd(path, branch string) error
	WorktreeRemove(path string) error

	ShowFile(ref, path string) ([]byte, error)
}

// ExecGit runs git subprocesses rooted at Dir. It implements both
// GitPrimitives and the lifecycle's GitOps capability.
type ExecGit struct {
	Dir string
}

// NewExecGit returns a GitPrimitives backed by the git CLI in dir.
func NewExecGit(dir string) *ExecGit {
	return &ExecGit{Dir: dir}
}

var _ GitPrimitives = (*ExecGit)(nil)
var _ core.GitOps = (*ExecGit)(nil)

// run executes git with the given arguments in g.Dir, returning trimmed
// combined output. Failures come back as git-category errors carrying a
// truncated output excerpt.
func (g *ExecGit) run(args ...string) (string, error) {
	return g.runIn(g.Dir, args...)
}

func (g *ExecGit) runIn(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(output))
	if err != nil {
		return text, core.GitErr(strings.Join(args, " "), err, text)
	}
	return text, nil
}

// CurrentBranch returns the name of the checked-out branch.
func (g *ExecGit) CurrentBranch() (string, error) {
	return g.run("rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists reports whether a local branch with the given name exists.
func (g *ExecGit) BranchExists(name string) bool {
	_, err := g.run("rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// RevParse resolves a ref to its commit hash.
func (g *ExecGit) RevParse(ref string) (string, error) {
	return g.run("rev-parse", ref)
}

// CommitMessage returns the full commit message of a ref.
func (g *ExecGit) CommitMessage(ref string) (string, error) {
	return g.run("log", "-1", "--format=%B", ref)
}

// DiffNames lists the paths that differ between a and the tip of b,
// measured from their merge base.
func (g *ExecGit) DiffNames(a, b string) ([]string, error) {
	out, err := g.run("diff", "--name-only", a+"..."+b)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// DiffStat renders the diffstat between a and the tip of b.
func (g *ExecGit) DiffStat(a, b string) (string, error) {
	return g.run("diff", "--stat", a+"..."+b)
}

// MergeSquash stages the branch's changes without committing.
func (g *ExecGit) MergeSquash(branch string) error {
	_, err := g.run("merge", "--squash", branch)
	return err
}

// MergeNoFF merges the branch with an explicit merge commit.
func (g *ExecGit) MergeNoFF(branch, subject string) error {
	_, err := g.run("merge", "--no-ff", "-m", subject, branch)
	return err
}

// MergeFFOnly fast-forwards onto the branch, refusing to create a commit.
func (g *ExecGit) MergeFFOnly(branch string) error {
	_, err := g.run("merge", "--ff-only", branch)
	return err
}

// MergeAbort aborts an in-progress merge.
func (g *ExecGit) MergeAbort() error {
	_, err := g.run("merge", "--abort")
	return err
}

// ResetHard resets the working tree and HEAD to ref.
func (g *ExecGit) ResetHard(ref string) error {
	_, err := g.run("reset", "--hard", ref)
	return err
}

// Rebase rebases the branch checked out in dir onto the given ref.
func (g *ExecGit) Rebase(dir, onto string) error {
	_, err := g.runIn(dir, "rebase", onto)
	return err
}

// RebaseAbort aborts an in-progress rebase in dir.
func (g *ExecGit) RebaseAbort(dir string) error {
	_, err := g.runIn(dir, "rebase", "--abort")
	return err
}

// AddPaths stages the given paths.
func (g *ExecGit) AddPaths(paths []string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := g.run(args...)
	return err
}

// StagedPaths lists the paths currently staged in the index.
func (g *ExecGit) StagedPaths() ([]string, error) {
	out, err := g.run("diff", "--cached", "--name-only")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// UnstagedTrackedPaths lists tracked paths with unstaged modifications. A
// non-empty result means the working tree is dirty.
func (g *ExecGit) UnstagedTrackedPaths() ([]string, error) {
	out, err := g.run("diff", "--name-only")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Commit creates a commit with the given subject. Extra environment
// variables are appended to the inherited environment, letting callers pass
// hook-visible markers.
func (g *ExecGit) Commit(subject string, env map[string]string) error {
	cmd := exec.Command("git", "commit", "-m", subject)
	cmd.Dir = g.Dir
	cmd.Env = os.Environ()
	for key, value := range env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return core.GitErr("commit", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// WorktreeAdd checks out an existing branch into a new worktree at path.
func (g *ExecGit) WorktreeAdd(path, branch string) error {
	_, err := g.run("worktree", "add", path, branch)
	return err
}

// WorktreeRemove removes the worktree at path, discarding local state.
func (g *ExecGit) WorktreeRemove(path string) error {
	_, err := g.run("worktree", "remove", "--force", path)
	return err
}

// ShowFile reads a blob from a committed tree (ref:path) without touching
// the working copy.
func (g *ExecGit) ShowFile(ref, path string) ([]byte, error) {
	out, err := g.run("show", ref+":"+path)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
