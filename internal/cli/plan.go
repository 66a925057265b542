package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage a task's plan and its approval sub-state",
}

var planSetCmd = &cobra.Command{
	Use:   "set <task-id>",
	Short: "Overwrite the Plan section and reset approval to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		author, _ := cmd.Flags().GetString("author")

		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading plan file: %w", err)
			}
			text = string(data)
		}

		task, err := Lifecycle.PlanSet(args[0], text, author)
		if err != nil {
			return err
		}
		fmt.Printf("Plan updated for %s (approval reset to %s)\n", task.ID, task.PlanApproval.State)
		return nil
	},
}

var planApproveCmd = &cobra.Command{
	Use:   "approve <task-id>",
	Short: "Approve a task's plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		author, _ := cmd.Flags().GetString("author")
		note, _ := cmd.Flags().GetString("note")

		task, err := Lifecycle.PlanApprove(args[0], author, note)
		if err != nil {
			return err
		}
		fmt.Printf("Plan approved for %s\n", task.ID)
		return nil
	},
}

var planRejectCmd = &cobra.Command{
	Use:   "reject <task-id>",
	Short: "Reject a task's plan (requires --note)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		author, _ := cmd.Flags().GetString("author")
		note, _ := cmd.Flags().GetString("note")

		task, err := Lifecycle.PlanReject(args[0], author, note)
		if err != nil {
			return err
		}
		fmt.Printf("Plan rejected for %s\n", task.ID)
		return nil
	},
}

func init() {
	planSetCmd.Flags().String("text", "", "Plan text")
	planSetCmd.Flags().String("file", "", "Read the plan from a file")

	for _, cmd := range []*cobra.Command{planSetCmd, planApproveCmd, planRejectCmd} {
		cmd.Flags().String("author", "", "Author of the decision")
	}
	planApproveCmd.Flags().String("note", "", "Optional note")
	planRejectCmd.Flags().String("note", "", "Rejection note (required)")

	planCmd.AddCommand(planSetCmd, planApproveCmd, planRejectCmd)
	rootCmd.AddCommand(planCmd)
}
