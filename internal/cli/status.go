package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <submission_id>",
		Short: "Check the status of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/submissions/" + id)
			if err != nil {
				return fmt.Errorf("get submission: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			state, _ := data["state"].(string)
			workflowID, _ := data["workflow_id"].(string)
			submittedBy, _ := data["submitted_by"].(string)

			fmt.Printf("Submission: %s\n", id)
			fmt.Printf("  Workflow:  %s\n", workflowID)
			fmt.Printf("  User:      %s\n", submittedBy)
			fmt.Printf("  State:     %s\n", state)

			if remoteWf, ok := data["remote_workflow_id"].(string); ok && remoteWf != "" {
				fmt.Printf("  Remote workflow:  %s\n", remoteWf)
			}
			if remoteAn, ok := data["remote_analysis_id"].(string); ok && remoteAn != "" {
				fmt.Printf("  Remote workspace: %s\n", remoteAn)
			}
			if reason, ok := data["error_reason"].(string); ok && reason != "" {
				fmt.Printf("  Error:     %s\n", reason)
			}
			if createdAt, ok := data["created_at"].(string); ok {
				fmt.Printf("  Created:   %s\n", createdAt)
			}
			if completedAt, ok := data["completed_at"].(string); ok && completedAt != "" {
				fmt.Printf("  Completed: %s\n", completedAt)
			}

			return nil
		},
	}
}
