package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <submission_id>",
		Short: "Delete a submission and its file references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if _, err := client.Delete("/api/v1/submissions/" + id); err != nil {
				return fmt.Errorf("delete submission: %w", err)
			}
			fmt.Printf("Submission deleted: %s\n", id)
			return nil
		},
	}
}
