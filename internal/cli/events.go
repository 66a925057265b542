package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agent-task-flow/internal/observability"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Read the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		eventType, _ := cmd.Flags().GetString("type")
		task, _ := cmd.Flags().GetString("task")
		sinceStr, _ := cmd.Flags().GetString("since")

		filter := observability.Filter{Type: eventType, Task: task}
		if sinceStr != "" {
			since, err := time.Parse(time.RFC3339, sinceStr)
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
			filter.Since = &since
		}

		entries, err := Audit.Read(filter)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Printf("%s  %-24s %s\n", entry.Time.Format(time.RFC3339), entry.Type, entry.Message)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().String("type", "", "Filter by event type (e.g. task.started)")
	eventsCmd.Flags().String("task", "", "Filter by task id")
	eventsCmd.Flags().String("since", "", "Only events at or after this RFC3339 time")

	rootCmd.AddCommand(eventsCmd)
}
