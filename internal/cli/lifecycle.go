package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agent-task-flow/internal/core"
)

var startCmd = &cobra.Command{
	Use:   "start <task-id>",
	Short: "Transition a task to DOING",
	Long: `Start work on a task. Requires a structured comment matching the
configured start-comment policy, a reachable transition, and complete
dependencies. With --status-commit, the transition is recorded as a git
commit through the allowlist guard.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("comment")
		author, _ := cmd.Flags().GetString("author")
		force, _ := cmd.Flags().GetBool("force")
		statusCommit, _ := cmd.Flags().GetBool("status-commit")
		confirm, _ := cmd.Flags().GetBool("confirm-status-commit")

		res, err := Lifecycle.Start(args[0], core.StartOptions{
			Comment:             comment,
			Author:              author,
			Force:               force,
			StatusCommit:        statusCommit,
			ConfirmStatusCommit: confirm,
		})
		if err != nil {
			return err
		}
		if res.Warning != "" {
			fmt.Fprintln(os.Stderr, "warning: "+res.Warning)
		}
		fmt.Printf("Task %s is now %s\n", res.Task.ID, res.Task.Status)
		return nil
	},
}

var finishCmd = &cobra.Command{
	Use:   "finish <task-id> [task-id...]",
	Short: "Mark one or more tasks DONE",
	Long: `Finish tasks. Requires a structured comment matching the configured
finish-comment policy. The implementation commit is resolved from --commit
or the current HEAD. Commit-generation flags require exactly one task id.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("comment")
		author, _ := cmd.Flags().GetString("author")
		force, _ := cmd.Flags().GetBool("force")
		commitHash, _ := cmd.Flags().GetString("commit")
		statusCommit, _ := cmd.Flags().GetBool("status-commit")
		deriveCommit, _ := cmd.Flags().GetBool("derive-commit")
		confirm, _ := cmd.Flags().GetBool("confirm-status-commit")

		results, err := Lifecycle.Finish(args, core.FinishOptions{
			Comment:             comment,
			Author:              author,
			Force:               force,
			CommitHash:          commitHash,
			StatusCommit:        statusCommit,
			DeriveCommit:        deriveCommit,
			ConfirmStatusCommit: confirm,
		})
		for _, res := range results {
			if res.Warning != "" {
				fmt.Fprintln(os.Stderr, "warning: "+res.Warning)
			}
			fmt.Printf("Task %s is now %s (commit %s)\n", res.Task.ID, res.Task.Status, res.Task.Commit.Hash)
		}
		return err
	},
}

func init() {
	for _, cmd := range []*cobra.Command{startCmd, finishCmd} {
		cmd.Flags().StringP("comment", "m", "", "Structured comment (required)")
		cmd.Flags().String("author", "", "Author of the transition")
		cmd.Flags().Bool("force", false, "Bypass transition and dependency checks")
		cmd.Flags().Bool("status-commit", false, "Auto-generate a status commit")
		cmd.Flags().Bool("confirm-status-commit", false, "Confirm the status commit under warn/confirm policy")
		_ = cmd.MarkFlagRequired("comment")
	}
	finishCmd.Flags().String("commit", "", "Implementation commit hash (default: HEAD)")
	finishCmd.Flags().Bool("derive-commit", false, "Commit with a subject derived from the comment")

	rootCmd.AddCommand(startCmd, finishCmd)
}
