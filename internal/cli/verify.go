package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Record verification outcomes for a task",
}

var verifyOKCmd = &cobra.Command{
	Use:   "ok <task-id>",
	Short: "Record a passing verification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return recordVerify(cmd, args[0], models.VerifyOK)
	},
}

var verifyReworkCmd = &cobra.Command{
	Use:   "rework <task-id>",
	Short: "Record a failing verification; resets the task to DOING",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return recordVerify(cmd, args[0], models.VerifyNeedsRework)
	},
}

func recordVerify(cmd *cobra.Command, id string, state models.VerifyState) error {
	author, _ := cmd.Flags().GetString("author")
	note, _ := cmd.Flags().GetString("note")

	task, err := Lifecycle.RecordVerification(id, state, author, note)
	if err != nil {
		return err
	}
	fmt.Printf("Verification %s recorded for %s (status %s)\n", task.Verification.State, task.ID, task.Status)
	return nil
}

func init() {
	for _, cmd := range []*cobra.Command{verifyOKCmd, verifyReworkCmd} {
		cmd.Flags().String("author", "", "Author of the verification")
		cmd.Flags().String("note", "", "Verification note")
	}

	verifyCmd.AddCommand(verifyOKCmd, verifyReworkCmd)
	rootCmd.AddCommand(verifyCmd)
}
