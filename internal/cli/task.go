package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agent-task-flow/internal/core"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks (create, list, show)",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new task",
	Long: `Create a new task with a sortable id and a skeleton document
containing every configured required section.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		priority, _ := cmd.Flags().GetString("priority")
		owner, _ := cmd.Flags().GetString("owner")
		tags, _ := cmd.Flags().GetStringSlice("tags")
		deps, _ := cmd.Flags().GetStringSlice("depends-on")
		verify, _ := cmd.Flags().GetStringArray("verify")

		task, err := Lifecycle.CreateTask(args[0], core.CreateTaskOpts{
			Description: description,
			Priority:    models.Priority(priority),
			Owner:       owner,
			Tags:        tags,
			DependsOn:   deps,
			Verify:      verify,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created task %s: %s\n", task.ID, task.Title)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")

		tasks, err := Backend.ListTasks()
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if statusFilter != "" && string(task.Status) != statusFilter {
				continue
			}
			fmt.Printf("%-20s %-8s %-7s %s\n", task.ID, task.Status, task.Priority, task.Title)
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task's fields and document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := Backend.GetTask(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("id:       %s\ntitle:    %s\nstatus:   %s\npriority: %s\n",
			task.ID, task.Title, task.Status, task.Priority)
		if task.Owner != "" {
			fmt.Printf("owner:    %s\n", task.Owner)
		}
		if len(task.Tags) > 0 {
			fmt.Printf("tags:     %v\n", task.Tags)
		}
		if len(task.DependsOn) > 0 {
			fmt.Printf("depends:  %v\n", task.DependsOn)
		}
		fmt.Printf("plan:     %s\nverify:   %s\n", task.PlanApproval.State, task.Verification.State)
		if task.Commit != nil {
			fmt.Printf("commit:   %s %s\n", task.Commit.Hash, task.Commit.Message)
		}
		if task.Doc != "" {
			fmt.Println()
			fmt.Println(task.Doc)
		}
		return nil
	},
}

func init() {
	taskCreateCmd.Flags().String("description", "", "Task description")
	taskCreateCmd.Flags().String("priority", "normal", "Priority (low, normal, med, high)")
	taskCreateCmd.Flags().String("owner", "", "Task owner")
	taskCreateCmd.Flags().StringSlice("tags", nil, "Tags")
	taskCreateCmd.Flags().StringSlice("depends-on", nil, "Task ids this task depends on")
	taskCreateCmd.Flags().StringArray("verify", nil, "Verification commands (repeatable)")

	taskListCmd.Flags().String("status", "", "Filter by status (TODO, DOING, DONE, BLOCKED)")

	taskCmd.AddCommand(taskCreateCmd, taskListCmd, taskShowCmd)
	rootCmd.AddCommand(taskCmd)
}
