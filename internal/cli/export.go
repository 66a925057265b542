package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agent-task-flow/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the checksummed task index snapshot",
	Long: `Export all tasks to the configured index path as canonical JSON
with a sha256 checksum. An existing snapshot whose checksum does not match
its own contents is refused, not overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := Backend.ListTasks()
		if err != nil {
			return err
		}
		idx, err := storage.BuildIndex(tasks)
		if err != nil {
			return err
		}
		if err := storage.WriteIndex(Config.IndexPath, idx); err != nil {
			return err
		}
		fmt.Printf("Exported %d tasks to %s\n", len(idx.Tasks), Config.IndexPath)
		return nil
	},
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate the whole task graph",
	Long: `Check cross-task invariants: dependency existence and acyclicity,
the DONE-implies-commit rule, document completeness, and field validity.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		issues, err := Lifecycle.Lint()
		if err != nil {
			return err
		}
		if len(issues) == 0 {
			fmt.Println("No issues found")
			return nil
		}
		for _, issue := range issues {
			fmt.Println(issue.String())
		}
		return fmt.Errorf("lint found %d issue(s)", len(issues))
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, lintCmd)
}
