package models

// WorkflowMode selects how task work is integrated.
type WorkflowMode string

const (
	// WorkflowBranch means each task gets its own branch and the PR
	// integration engine merges it into the base branch.
	WorkflowBranch WorkflowMode = "branch"
	// WorkflowTrunk means work lands directly on the base branch; the
	// integration engine refuses to run in this mode.
	WorkflowTrunk WorkflowMode = "trunk"
)

// StatusCommitPolicy governs whether major status transitions may
// auto-generate a git commit.
type StatusCommitPolicy string

const (
	StatusCommitOff     StatusCommitPolicy = "off"
	StatusCommitWarn    StatusCommitPolicy = "warn"
	StatusCommitConfirm StatusCommitPolicy = "confirm"
)

// CommentPolicy constrains the structured comment required by a lifecycle
// operation: it must start with Prefix and be at least MinLength runes long.
type CommentPolicy struct {
	Prefix    string
	MinLength int
}

// Config holds the workflow configuration consumed by the core. Loaded from
// .atfconfig via viper; invalid values are rejected at load time.
type Config struct {
	// WorkflowMode is "branch" or "trunk".
	WorkflowMode WorkflowMode

	// RequiredSections lists the document sections every task record must
	// contain, in skeleton order.
	RequiredSections []string

	// VerifyRequiredTags lists tags whose tasks must carry a filled
	// "Verify Steps" section before start, and a satisfied verification
	// sub-state before finish.
	VerifyRequiredTags []string

	// RequirePlanApproval gates start on an approved plan for every task.
	RequirePlanApproval bool

	// StartComment and FinishComment are the structured-comment policies
	// for the start and finish operations.
	StartComment  CommentPolicy
	FinishComment CommentPolicy

	// StatusCommit controls auto-commits on major status transitions.
	StatusCommit StatusCommitPolicy

	// IndexPath is the repo-relative path of the shared task index
	// snapshot. Only the base branch may modify it.
	IndexPath string

	// ArtifactDir is the repo-relative directory holding PR metadata,
	// diffstat snapshots, and verification transcripts.
	ArtifactDir string

	// CommitAllowlist is the set of path prefixes the commit guard permits
	// for lifecycle-driven commits.
	CommitAllowlist []string
}
