package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agent-task-flow/internal/integration"
)

var prCmd = &cobra.Command{
	Use:   "pr",
	Short: "Manage and integrate task branches",
}

var prOpenCmd = &cobra.Command{
	Use:   "open <task-id>",
	Short: "Record the branch/base pairing for a task and snapshot its diffstat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch, _ := cmd.Flags().GetString("branch")
		base, _ := cmd.Flags().GetString("base")

		meta, err := Engine.OpenPR(args[0], branch, base)
		if err != nil {
			return err
		}
		fmt.Printf("Opened PR for %s: %s -> %s\n", args[0], meta.Branch, meta.Base)
		return nil
	},
}

var prUpdateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Refresh the diffstat snapshot for a task's PR",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, err := Engine.UpdatePR(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Updated PR for %s: %s\n", args[0], meta.Branch)
		return nil
	},
}

var prIntegrateCmd = &cobra.Command{
	Use:   "integrate <task-id>",
	Short: "Merge a task's branch into the base branch",
	Long: `Integrate a task branch using one of three strategies: squash,
merge (--no-ff), or rebase (rebase then fast-forward). Verification runs
against the branch head unless the verify-state cache already covers it.
A failed attempt always leaves the base branch where it started.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, _ := cmd.Flags().GetString("strategy")
		branch, _ := cmd.Flags().GetString("branch")
		base, _ := cmd.Flags().GetString("base")
		forceVerify, _ := cmd.Flags().GetBool("force-verify")

		result, err := Engine.Integrate(integration.IntegrateOptions{
			TaskID:      args[0],
			Strategy:    integration.Strategy(strategy),
			Branch:      branch,
			Base:        base,
			BaseGiven:   cmd.Flags().Changed("base"),
			ForceVerify: forceVerify,
		})
		if err != nil {
			return err
		}

		if len(result.NewEntries) > 0 {
			if _, err := Lifecycle.RecordIntegration(args[0], result.NewEntries); err != nil {
				fmt.Fprintf(os.Stderr, "warning: integration succeeded but recording verification on the task failed: %v\n", err)
			}
		}
		if result.VerificationSkipped {
			fmt.Println("Verification skipped: branch head already verified")
		}
		fmt.Printf("Integrated %s into %s at %s\n", result.Branch, result.Base, result.MergeSHA)
		return nil
	},
}

var prCleanupCmd = &cobra.Command{
	Use:   "cleanup <task-id>",
	Short: "Archive a merged branch's PR artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := Engine.Cleanup(args[0]); err != nil {
			return err
		}
		fmt.Printf("Archived PR artifacts for %s\n", args[0])
		return nil
	},
}

func init() {
	prOpenCmd.Flags().String("branch", "", "Task branch (default: task/<task-id>)")
	prOpenCmd.Flags().String("base", "", "Base branch (default: current branch)")

	prIntegrateCmd.Flags().String("strategy", "squash", "Merge strategy (squash, merge, rebase)")
	prIntegrateCmd.Flags().String("branch", "", "Task branch (default: from PR metadata)")
	prIntegrateCmd.Flags().String("base", "", "Base branch override")
	prIntegrateCmd.Flags().Bool("force-verify", false, "Re-run verification even if the head is already verified")

	prCmd.AddCommand(prOpenCmd, prUpdateCmd, prIntegrateCmd, prCleanupCmd)
	rootCmd.AddCommand(prCmd)
}
