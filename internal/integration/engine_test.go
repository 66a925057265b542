package integration

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/agent-task-flow/internal/core"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// fakeGit models just enough repository state for the engine: a current
// branch, branch heads, staged/unstaged paths, and an operation log so tests
// can assert what ran and in which order.
type fakeGit struct {
	current  string
	branches map[string]string
	messages map[string]string
	diffs    map[string][]string
	stat     string
	staged   []string
	unstaged []string
	blobs    map[string]string

	head         string
	squashStaged []string
	failSquash   bool
	failNoFF     bool
	failFFOnly   bool
	failRebase   bool
	rebasedHeads map[string]string

	ops        []string
	commits    []string
	commitEnvs []map[string]string
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		current: "main",
		branches: map[string]string{
			"main":        "ba5e00",
			"task/AB12CD": "fead00",
		},
		messages: map[string]string{
			"refs/heads/task/AB12CD": "wip stuff\n\nmore detail",
		},
		diffs: map[string][]string{
			"main...task/AB12CD": {"src/app.go"},
		},
		stat:         "src/app.go | 2 +-",
		blobs:        map[string]string{},
		head:         "ba5e00",
		squashStaged: []string{"src/app.go"},
	}
}

func (g *fakeGit) op(name string) { g.ops = append(g.ops, name) }

func (g *fakeGit) CurrentBranch() (string, error) { return g.current, nil }

func (g *fakeGit) BranchExists(name string) bool {
	_, ok := g.branches[name]
	return ok
}

func (g *fakeGit) RevParse(ref string) (string, error) {
	if ref == "HEAD" {
		return g.head, nil
	}
	name := strings.TrimPrefix(ref, "refs/heads/")
	if sha, ok := g.branches[name]; ok {
		return sha, nil
	}
	return "", core.Gitf("unknown ref %q", ref)
}

func (g *fakeGit) CommitMessage(ref string) (string, error) {
	if msg, ok := g.messages[ref]; ok {
		return msg, nil
	}
	return "", core.Gitf("unknown ref %q", ref)
}

func (g *fakeGit) DiffNames(a, b string) ([]string, error) {
	return g.diffs[a+"..."+b], nil
}

func (g *fakeGit) DiffStat(a, b string) (string, error) { return g.stat, nil }

func (g *fakeGit) MergeSquash(branch string) error {
	g.op("merge-squash " + branch)
	if g.failSquash {
		return core.Gitf("merge --squash %s failed", branch)
	}
	g.staged = append([]string(nil), g.squashStaged...)
	return nil
}

func (g *fakeGit) MergeNoFF(branch, subject string) error {
	g.op("merge-no-ff " + branch)
	if g.failNoFF {
		return core.Gitf("merge --no-ff %s failed", branch)
	}
	g.head = "noff-" + g.branches[branch]
	return nil
}

func (g *fakeGit) MergeFFOnly(branch string) error {
	g.op("merge-ff-only " + branch)
	if g.failFFOnly {
		return core.Gitf("merge --ff-only %s failed", branch)
	}
	g.head = g.branches[branch]
	return nil
}

func (g *fakeGit) MergeAbort() error {
	g.op("merge-abort")
	g.staged = nil
	return nil
}

func (g *fakeGit) ResetHard(ref string) error {
	g.op("reset-hard " + ref)
	g.head = ref
	g.staged = nil
	return nil
}

func (g *fakeGit) Rebase(dir, onto string) error {
	g.op("rebase onto " + onto)
	if g.failRebase {
		return core.Gitf("rebase failed")
	}
	for branch, newHead := range g.rebasedHeads {
		g.branches[branch] = newHead
	}
	return nil
}

func (g *fakeGit) RebaseAbort(dir string) error {
	g.op("rebase-abort")
	return nil
}

func (g *fakeGit) AddPaths(paths []string) error {
	g.staged = append(g.staged, paths...)
	return nil
}

func (g *fakeGit) StagedPaths() ([]string, error) {
	return append([]string(nil), g.staged...), nil
}

func (g *fakeGit) UnstagedTrackedPaths() ([]string, error) {
	return append([]string(nil), g.unstaged...), nil
}

func (g *fakeGit) Commit(subject string, env map[string]string) error {
	g.op("commit")
	g.commits = append(g.commits, subject)
	g.commitEnvs = append(g.commitEnvs, env)
	g.head = fmt.Sprintf("c0de%02d", len(g.commits))
	g.staged = nil
	return nil
}

func (g *fakeGit) WorktreeAdd(path, branch string) error {
	g.op("worktree-add " + branch)
	return nil
}

func (g *fakeGit) WorktreeRemove(path string) error {
	g.op("worktree-remove")
	return nil
}

func (g *fakeGit) ShowFile(ref, path string) ([]byte, error) {
	if blob, ok := g.blobs[ref+":"+path]; ok {
		return []byte(blob), nil
	}
	return nil, core.Gitf("path %q does not exist in %q", path, ref)
}

// fakeBackend serves tasks from a map.
type fakeBackend struct {
	tasks map[string]*models.Task
}

func (b *fakeBackend) ListTasks() ([]*models.Task, error) {
	var out []*models.Task
	for _, t := range b.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (b *fakeBackend) GetTask(id string) (*models.Task, error) {
	t, ok := b.tasks[id]
	if !ok {
		return nil, core.Validationf("task %s not found", id)
	}
	return t.Clone(), nil
}

func (b *fakeBackend) WriteTask(task *models.Task) error {
	b.tasks[task.ID] = task.Clone()
	return nil
}

// fakeRunner resolves commands against a canned result table and records
// every invocation.
type fakeRunner struct {
	results map[string]struct {
		output string
		ok     bool
	}
	calls []string
}

func (r *fakeRunner) Run(dir, command string) (string, bool, error) {
	r.calls = append(r.calls, command)
	res, ok := r.results[command]
	if !ok {
		return "", false, core.IOErr("running "+command, errors.New("not found"))
	}
	return res.output, res.ok, nil
}

type engineFixture struct {
	cfg  *models.Config
	git  *fakeGit
	back *fakeBackend
	art  *Artifacts
	run  *fakeRunner
	eng  *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	cfg := &models.Config{
		WorkflowMode: models.WorkflowBranch,
		IndexPath:    ".atf/index.json",
		ArtifactDir:  t.TempDir(),
	}
	git := newFakeGit()
	back := &fakeBackend{tasks: map[string]*models.Task{
		"AB12CD": {
			ID:           "AB12CD",
			Title:        "Fix the widget",
			Status:       models.StatusDoing,
			Verify:       []string{"go test ./..."},
			PlanApproval: models.PlanApproval{State: models.ApprovalApproved},
			Verification: models.Verification{State: models.VerifyPending},
		},
	}}
	art := NewArtifacts(cfg.ArtifactDir)
	run := &fakeRunner{results: map[string]struct {
		output string
		ok     bool
	}{
		"go test ./...": {output: "ok", ok: true},
	}}

	eng := NewEngine(cfg, git, back, art, run, nil)
	eng.now = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	return &engineFixture{cfg: cfg, git: git, back: back, art: art, run: run, eng: eng}
}

// openPR seeds the local PR artifacts the way `atf pr open` would.
func (f *engineFixture) openPR(t *testing.T) {
	t.Helper()
	if err := f.art.WriteMetadata("AB12CD", &models.PRMetadata{Branch: "task/AB12CD", Base: "main"}); err != nil {
		t.Fatal(err)
	}
	if err := f.art.WriteDiffstat("AB12CD", f.git.stat); err != nil {
		t.Fatal(err)
	}
}

func errCategory(err error) core.Category {
	var tagged *core.Error
	if errors.As(err, &tagged) {
		return tagged.Category
	}
	return ""
}

func TestIntegrate_RejectsUnknownStrategy(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: "octopus"})
	if errCategory(err) != core.CategoryUsage {
		t.Fatalf("err = %v, want usage", err)
	}
}

func TestIntegrate_SquashHappyPath(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)

	result, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	if result.Branch != "task/AB12CD" || result.Base != "main" {
		t.Errorf("result = %+v", result)
	}
	if result.BranchSHA != "fead00" {
		t.Errorf("BranchSHA = %s", result.BranchSHA)
	}
	if result.MergeSHA != f.git.head {
		t.Errorf("MergeSHA = %s, head = %s", result.MergeSHA, f.git.head)
	}

	// Verification ran against the branch head and landed in the transcript.
	if len(result.NewEntries) != 1 || result.NewEntries[0].SHA != "fead00" || !result.NewEntries[0].OK {
		t.Errorf("entries = %+v", result.NewEntries)
	}
	verified, err := f.art.TranscriptVerified("AB12CD", "fead00")
	if err != nil || !verified {
		t.Errorf("TranscriptVerified = %v, %v", verified, err)
	}
	meta, err := f.art.LoadMetadata("AB12CD")
	if err != nil {
		t.Fatal(err)
	}
	if meta.LastVerifiedSHA != "fead00" {
		t.Errorf("LastVerifiedSHA = %s", meta.LastVerifiedSHA)
	}

	// The branch subject does not follow the structured policy, so the
	// squash commit gets the generic subject and the hook markers.
	if len(f.git.commits) != 1 || f.git.commits[0] != "integrate: squash task/AB12CD" {
		t.Errorf("commits = %v", f.git.commits)
	}
	env := f.git.commitEnvs[0]
	if env[envAllowBaseWrite] != "1" || env[envAllowTaskWrite] != "0" {
		t.Errorf("commit env = %v", env)
	}
}

func TestIntegrate_SquashReusesConformantSubject(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.git.messages["refs/heads/task/AB12CD"] = "\U0001F680 AB12CD: fix the widget\n\nbody"

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if len(f.git.commits) != 1 || f.git.commits[0] != "\U0001F680 AB12CD: fix the widget" {
		t.Errorf("commits = %v", f.git.commits)
	}
}

func TestIntegrate_SquashNothingToIntegrate(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.back.tasks["AB12CD"].Verify = nil
	f.git.squashStaged = nil

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "nothing to integrate") {
		t.Errorf("err = %v", err)
	}
	if f.git.head != "ba5e00" {
		t.Errorf("head = %s, want snapshot restored", f.git.head)
	}
	if !containsOp(f.git.ops, "reset-hard ba5e00") {
		t.Errorf("ops = %v, want rollback reset", f.git.ops)
	}
}

func TestIntegrate_SquashFailureRollsBack(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.back.tasks["AB12CD"].Verify = nil
	f.git.failSquash = true

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryGit {
		t.Fatalf("err = %v, want git", err)
	}
	if !containsOp(f.git.ops, "reset-hard ba5e00") {
		t.Errorf("ops = %v, want rollback reset", f.git.ops)
	}
	if f.git.head != "ba5e00" {
		t.Errorf("head = %s, want snapshot restored", f.git.head)
	}
	if len(f.git.commits) != 0 {
		t.Errorf("commits = %v, want none", f.git.commits)
	}
}

func TestIntegrate_MergeAbortsOnFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.back.tasks["AB12CD"].Verify = nil
	f.git.failNoFF = true

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategyMerge})
	if errCategory(err) != core.CategoryGit {
		t.Fatalf("err = %v, want git", err)
	}
	if !containsOp(f.git.ops, "merge-abort") {
		t.Errorf("ops = %v, want merge --abort", f.git.ops)
	}
	if f.git.head != "ba5e00" {
		t.Errorf("head = %s, want unchanged", f.git.head)
	}
}

func TestIntegrate_SingleWriterViolation(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.git.diffs["main...task/AB12CD"] = []string{"src/app.go", ".atf/index.json"}

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryGit {
		t.Fatalf("err = %v, want git", err)
	}
	if !strings.Contains(err.Error(), "single-writer violation") {
		t.Errorf("err = %v", err)
	}
	for _, op := range f.git.ops {
		if strings.HasPrefix(op, "merge") || op == "commit" {
			t.Errorf("precondition failure still ran %q", op)
		}
	}
}

func TestIntegrate_VerifyCacheSkipsRerun(t *testing.T) {
	f := newEngineFixture(t)
	if err := f.art.WriteMetadata("AB12CD", &models.PRMetadata{
		Branch: "task/AB12CD", Base: "main", LastVerifiedSHA: "fead00",
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.art.WriteDiffstat("AB12CD", f.git.stat); err != nil {
		t.Fatal(err)
	}
	if err := f.art.AppendTranscript("AB12CD", []models.VerificationEntry{
		{SHA: "fead00", Command: "go test ./...", OK: true, At: "2026-09-01T11:00:00Z"},
	}); err != nil {
		t.Fatal(err)
	}

	result, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if !result.VerificationSkipped {
		t.Error("VerificationSkipped = false, want cache hit")
	}
	if len(f.run.calls) != 0 {
		t.Errorf("runner calls = %v, want none", f.run.calls)
	}
	if len(result.NewEntries) != 0 {
		t.Errorf("entries = %+v, want none", result.NewEntries)
	}
}

func TestIntegrate_ForceVerifyIgnoresCache(t *testing.T) {
	f := newEngineFixture(t)
	if err := f.art.WriteMetadata("AB12CD", &models.PRMetadata{
		Branch: "task/AB12CD", Base: "main", LastVerifiedSHA: "fead00",
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.art.WriteDiffstat("AB12CD", f.git.stat); err != nil {
		t.Fatal(err)
	}
	if err := f.art.AppendTranscript("AB12CD", []models.VerificationEntry{
		{SHA: "fead00", Command: "go test ./...", OK: true, At: "2026-09-01T11:00:00Z"},
	}); err != nil {
		t.Fatal(err)
	}

	result, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash, ForceVerify: true})
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if result.VerificationSkipped {
		t.Error("VerificationSkipped = true under --force-verify")
	}
	if len(f.run.calls) != 1 {
		t.Errorf("runner calls = %v, want one", f.run.calls)
	}
}

func TestIntegrate_VerificationFailureAbortsBeforeMerge(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.run.results["go test ./..."] = struct {
		output string
		ok     bool
	}{output: "FAIL", ok: false}

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if f.git.head != "ba5e00" {
		t.Errorf("head = %s, want untouched", f.git.head)
	}
	for _, op := range f.git.ops {
		if strings.HasPrefix(op, "merge") {
			t.Errorf("failed verification still ran %q", op)
		}
	}

	// The failing run is still recorded; the transcript is append-only
	// history, not a success log.
	entries, err := f.art.ReadTranscript("AB12CD")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].OK {
		t.Errorf("transcript = %+v", entries)
	}

	// The recorded failure also invalidates the cache for that hash.
	verified, err := f.art.TranscriptVerified("AB12CD", "fead00")
	if err != nil || verified {
		t.Errorf("TranscriptVerified = %v, %v", verified, err)
	}
}

func TestIntegrate_RebaseReverifiesNewHead(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.git.rebasedHeads = map[string]string{"task/AB12CD": "4eb5ed"}

	result, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategyRebase})
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	if result.BranchSHA != "4eb5ed" {
		t.Errorf("BranchSHA = %s, want rewritten head", result.BranchSHA)
	}
	if result.MergeSHA != "4eb5ed" {
		t.Errorf("MergeSHA = %s, want fast-forward to rewritten head", result.MergeSHA)
	}
	if len(result.NewEntries) != 1 || result.NewEntries[0].SHA != "4eb5ed" {
		t.Errorf("entries = %+v, want verification of the rewritten head", result.NewEntries)
	}
	meta, err := f.art.LoadMetadata("AB12CD")
	if err != nil {
		t.Fatal(err)
	}
	if meta.LastVerifiedSHA != "4eb5ed" {
		t.Errorf("LastVerifiedSHA = %s", meta.LastVerifiedSHA)
	}
}

func TestIntegrate_RebaseFailureAborts(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.git.failRebase = true

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategyRebase})
	if errCategory(err) != core.CategoryGit {
		t.Fatalf("err = %v, want git", err)
	}
	if !containsOp(f.git.ops, "rebase-abort") {
		t.Errorf("ops = %v, want rebase --abort", f.git.ops)
	}
	if f.git.head != "ba5e00" {
		t.Errorf("head = %s, want unchanged", f.git.head)
	}
}

func TestIntegrate_FFOnlyFailureRollsBack(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.back.tasks["AB12CD"].Verify = nil
	f.git.failFFOnly = true

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategyRebase})
	if errCategory(err) != core.CategoryGit {
		t.Fatalf("err = %v, want git", err)
	}
	if !containsOp(f.git.ops, "reset-hard ba5e00") {
		t.Errorf("ops = %v, want rollback reset", f.git.ops)
	}
	if f.git.head != "ba5e00" {
		t.Errorf("head = %s", f.git.head)
	}
}

func TestIntegrate_DirtyTreeRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.git.unstaged = []string{"src/app.go"}

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "not clean") {
		t.Errorf("err = %v", err)
	}
}

func TestIntegrate_PlanApprovalGate(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.cfg.RequirePlanApproval = true
	f.back.tasks["AB12CD"].PlanApproval.State = models.ApprovalPending

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "plan approval") {
		t.Errorf("err = %v", err)
	}
}

func TestIntegrate_NeedsReworkBlocks(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.back.tasks["AB12CD"].Verification.State = models.VerifyNeedsRework

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestIntegrate_TrunkModeRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.cfg.WorkflowMode = models.WorkflowTrunk

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestIntegrate_BlankBaseRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash, Base: "  ", BaseGiven: true})
	if errCategory(err) != core.CategoryUsage {
		t.Fatalf("err = %v, want usage", err)
	}
}

func TestIntegrate_MustRunFromBaseBranch(t *testing.T) {
	f := newEngineFixture(t)
	f.openPR(t)
	f.git.current = "develop"
	f.git.branches["develop"] = "d00dad"

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryGit {
		t.Fatalf("err = %v, want git", err)
	}
	if !strings.Contains(err.Error(), "runs from the base branch") {
		t.Errorf("err = %v", err)
	}
}

func TestIntegrate_ResolvesBranchFromCommittedMetadata(t *testing.T) {
	f := newEngineFixture(t)
	// No local pr.json: the metadata lives only as a blob committed on the
	// conventional task branch.
	if err := f.art.WriteDiffstat("AB12CD", f.git.stat); err != nil {
		t.Fatal(err)
	}
	blobPath := blobPathFor(f.art, "AB12CD")
	f.git.blobs["task/AB12CD:"+blobPath] = `{"branch":"task/AB12CD","base":"main"}`

	result, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if result.Branch != "task/AB12CD" || result.Base != "main" {
		t.Errorf("result = %+v", result)
	}
}

func TestIntegrate_UnresolvableBranch(t *testing.T) {
	f := newEngineFixture(t)
	// No artifacts at all and no conventional branch.
	delete(f.git.branches, "task/AB12CD")

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryUsage {
		t.Fatalf("err = %v, want usage", err)
	}
	if !strings.Contains(err.Error(), "pass --branch or open a PR first") {
		t.Errorf("err = %v", err)
	}
}

func TestIntegrate_MissingDiffstatArtifact(t *testing.T) {
	f := newEngineFixture(t)
	if err := f.art.WriteMetadata("AB12CD", &models.PRMetadata{Branch: "task/AB12CD", Base: "main"}); err != nil {
		t.Fatal(err)
	}

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "diffstat") {
		t.Errorf("err = %v", err)
	}
}

func TestIntegrate_StaleVerifiedSHAWithoutTranscript(t *testing.T) {
	f := newEngineFixture(t)
	if err := f.art.WriteMetadata("AB12CD", &models.PRMetadata{
		Branch: "task/AB12CD", Base: "main", LastVerifiedSHA: "fead00",
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.art.WriteDiffstat("AB12CD", f.git.stat); err != nil {
		t.Fatal(err)
	}

	_, err := f.eng.Integrate(IntegrateOptions{TaskID: "AB12CD", Strategy: StrategySquash})
	if errCategory(err) != core.CategoryValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "no passing run") {
		t.Errorf("err = %v", err)
	}
}

// blobPathFor mirrors the path the engine asks git to show when falling
// back to committed metadata.
func blobPathFor(art *Artifacts, taskID string) string {
	return filepath.ToSlash(art.MetadataPath(taskID))
}

func containsOp(ops []string, want string) bool {
	for _, op := range ops {
		if op == want {
			return true
		}
	}
	return false
}
