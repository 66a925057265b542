package integration

import (
	"strings"

	"github.com/valter-silva-au/agent-task-flow/internal/core"
)

// AllowlistGuard is the check-then-commit gate for lifecycle-driven commits:
// every staged path must fall under one of the configured allowlist prefixes.
// It deliberately knows nothing about why the commit is being made.
type AllowlistGuard struct{}

var _ core.CommitGuard = AllowlistGuard{}

// Check vetoes the commit unless something is staged, the subject is
// non-blank, and every staged path is allow-listed.
func (AllowlistGuard) Check(stagedPaths []string, allowlist []string, subject string) error {
	if strings.TrimSpace(subject) == "" {
		return core.Usagef("commit subject must not be blank")
	}
	if len(stagedPaths) == 0 {
		return core.Validationf("nothing staged to commit")
	}
	for _, path := range stagedPaths {
		if !pathAllowed(path, allowlist) {
			return core.Validationf("staged path %q is outside the commit allowlist %v", path, allowlist)
		}
	}
	return nil
}

// pathAllowed matches a staged path against the allowlist. Entries ending in
// "/" are directory prefixes; anything else must match exactly.
func pathAllowed(path string, allowlist []string) bool {
	for _, entry := range allowlist {
		if entry == "" {
			continue
		}
		if strings.HasSuffix(entry, "/") {
			if strings.HasPrefix(path, entry) {
				return true
			}
			continue
		}
		if path == entry {
			return true
		}
	}
	return false
}
