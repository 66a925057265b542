// Package cli defines the atf command tree. Commands stay thin: they parse
// flags, call into the wired services, and print results. Dependencies are
// package-level variables set by the app wiring before Execute runs.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agent-task-flow/internal/core"
	"github.com/valter-silva-au/agent-task-flow/internal/integration"
	"github.com/valter-silva-au/agent-task-flow/internal/observability"
	"github.com/valter-silva-au/agent-task-flow/internal/storage"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// Wired by the app before Execute.
var (
	BasePath  string
	Config    *models.Config
	Lifecycle *core.Lifecycle
	Engine    *integration.Engine
	Backend   *storage.FileBackend
	Audit     *observability.AuditLog
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "atf",
	Short: "Agent Task Flow - multi-agent task lifecycle and branch integration",
	Long: `Agent Task Flow (atf) tracks units of work through a lifecycle from
creation to completion. Each task carries a structured markdown document
(summary, scope, plan, risks, verification, rollback), and atf automates
the git-level mechanics of getting a task's branch merged into a base
branch under verification and single-writer guarantees.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("atf %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an error's category to a process exit code.
func ExitCode(err error) int {
	switch core.CategoryOf(err) {
	case core.CategoryUsage:
		return 2
	case core.CategoryValidation:
		return 3
	case core.CategoryIO:
		return 4
	case core.CategoryGit:
		return 5
	case core.CategoryConcurrency:
		return 6
	default:
		return 1
	}
}
