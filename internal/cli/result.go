package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newResultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result <submission_id>",
		Short: "Show the result set of a completed submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/submissions/" + id + "/result")
			if err != nil {
				return fmt.Errorf("get result: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			analysisID, _ := data["id"].(string)
			analysisType, _ := data["type"].(string)
			fmt.Printf("Analysis: %s (%s)\n", analysisID, analysisType)

			outputs, _ := data["output_files"].([]any)
			if len(outputs) == 0 {
				fmt.Println("  No output files.")
				return nil
			}
			fmt.Println("  Outputs:")
			for _, o := range outputs {
				out, ok := o.(map[string]any)
				if !ok {
					continue
				}
				name, _ := out["name"].(string)
				path, _ := out["path"].(string)
				fmt.Printf("    - %s: %s\n", name, path)
			}
			return nil
		},
	}
}
