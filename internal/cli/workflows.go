package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newWorkflowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "List available workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/workflows/")
			if err != nil {
				return fmt.Errorf("list workflows: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No workflows registered.")
				return nil
			}

			fmt.Printf("%-28s  %-10s  %s\n", "ID", "VERSION", "NAME")
			fmt.Printf("%-28s  %-10s  %s\n", "----", "-------", "----")
			for _, wf := range data {
				id, _ := wf["id"].(string)
				version, _ := wf["version"].(string)
				name, _ := wf["name"].(string)
				fmt.Printf("%-28s  %-10s  %s\n", id, version, name)
			}
			return nil
		},
	}
}
