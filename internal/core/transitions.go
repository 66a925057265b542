package core

import (
	"strings"

	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// allowedTransitions is the direct status transition table. Everything not
// listed is rejected unless the caller forces the transition.
var allowedTransitions = map[models.Status][]models.Status{
	models.StatusTodo:    {models.StatusTodo, models.StatusDoing},
	models.StatusDoing:   {models.StatusDone, models.StatusBlocked},
	models.StatusBlocked: {models.StatusDoing, models.StatusTodo},
}

// IsTransitionAllowed reports whether a direct from→to status change is
// legal without a force flag.
func IsTransitionAllowed(from, to models.Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// majorTransitions are the status changes eligible for an auto-generated
// status commit. The commit-policy gate only exists for these.
var majorTransitions = map[[2]models.Status]bool{
	{models.StatusTodo, models.StatusDoing}:    true,
	{models.StatusDoing, models.StatusTodo}:    true,
	{models.StatusDoing, models.StatusBlocked}: true,
	{models.StatusBlocked, models.StatusDoing}: true,
	{models.StatusDoing, models.StatusDone}:    true,
}

// IsMajorTransition reports whether from→to is a major status change.
func IsMajorTransition(from, to models.Status) bool {
	return majorTransitions[[2]models.Status{from, to}]
}

// CheckStatusCommitGate applies the configured status-commit policy to a
// transition that wants to auto-generate a commit. It returns a non-empty
// warning under the warn policy when the caller has not confirmed, and an
// error when the transition is not major or the confirm policy is
// unsatisfied.
func CheckStatusCommitGate(policy models.StatusCommitPolicy, from, to models.Status, confirmed bool) (warning string, err error) {
	if !IsMajorTransition(from, to) {
		return "", Usagef("status commit requested for non-major transition %s -> %s", from, to)
	}
	switch policy {
	case models.StatusCommitOff:
		return "", nil
	case models.StatusCommitWarn:
		if confirmed {
			return "", nil
		}
		return "auto-generating a status commit for " + string(from) + " -> " + string(to), nil
	case models.StatusCommitConfirm:
		if confirmed {
			return "", nil
		}
		return "", Usagef("status_commit.policy is confirm: pass --confirm-status-commit to allow the %s -> %s commit", from, to)
	default:
		// Unreachable when config validation ran at load time.
		return "", Validationf("unrecognized status commit policy %q", policy)
	}
}

// ValidateComment enforces a structured-comment policy: the body must start
// with the configured prefix and meet the minimum length.
func ValidateComment(body string, policy models.CommentPolicy) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return Usagef("a comment is required")
	}
	if policy.Prefix != "" && !strings.HasPrefix(trimmed, policy.Prefix) {
		return Usagef("comment must start with %q", policy.Prefix)
	}
	if len([]rune(trimmed)) < policy.MinLength {
		return Usagef("comment must be at least %d characters", policy.MinLength)
	}
	return nil
}

// CommitSubjectFromComment derives a deterministic, emoji-prefixed commit
// subject from a structured comment: the prefix is stripped and the first
// line kept.
func CommitSubjectFromComment(emoji, taskID, body string) string {
	first := strings.TrimSpace(body)
	if idx := strings.IndexByte(first, '\n'); idx >= 0 {
		first = strings.TrimSpace(first[:idx])
	}
	if idx := strings.IndexByte(first, ':'); idx >= 0 {
		first = strings.TrimSpace(first[idx+1:])
	}
	return emoji + " " + TaskIDSuffix(taskID) + ": " + first
}

// TaskIDSuffix returns the short random suffix of a task id, used in commit
// subjects instead of the full timestamped id.
func TaskIDSuffix(taskID string) string {
	if idx := strings.IndexByte(taskID, '-'); idx >= 0 {
		return taskID[idx+1:]
	}
	return taskID
}

// SubjectMatchesPolicy reports whether a commit subject follows the
// emoji-prefixed structured form produced by CommitSubjectFromComment: a
// leading non-ASCII rune, the task id suffix, and a colon-separated summary.
func SubjectMatchesPolicy(subject, taskID string) bool {
	trimmed := strings.TrimSpace(subject)
	if trimmed == "" {
		return false
	}
	runes := []rune(trimmed)
	if runes[0] < 128 {
		return false
	}
	rest := strings.TrimSpace(string(runes[1:]))
	if !strings.HasPrefix(rest, TaskIDSuffix(taskID)+":") {
		return false
	}
	summary := strings.TrimSpace(strings.TrimPrefix(rest, TaskIDSuffix(taskID)+":"))
	return summary != ""
}
