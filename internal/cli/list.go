package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/submissions/"
			if state != "" {
				path += "?state=" + state
			}
			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list submissions: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No submissions found.")
				return nil
			}

			fmt.Printf("%-42s  %-15s  %-24s  %s\n", "ID", "STATE", "WORKFLOW", "CREATED")
			fmt.Printf("%-42s  %-15s  %-24s  %s\n", "----", "-----", "--------", "-------")
			for _, sub := range data {
				id, _ := sub["id"].(string)
				subState, _ := sub["state"].(string)
				workflowID, _ := sub["workflow_id"].(string)
				createdAt, _ := sub["created_at"].(string)
				fmt.Printf("%-42s  %-15s  %-24s  %s\n", id, subState, workflowID, createdAt)
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Printf("\n(%d of %d shown)\n", len(data), resp.Pagination.Total)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (CREATED, FILES_MIRRORED, PREPARED, RUNNING, COMPLETED, ERROR)")
	return cmd
}
