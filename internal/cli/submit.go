package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var (
		name  string
		user  string
		files []string
		pairs []string
	)

	cmd := &cobra.Command{
		Use:   "submit <workflow_id>",
		Short: "Submit an analysis run",
		Long: "Create an analysis submission for the given workflow. Input files are\n" +
			"remote locators (https://, s3://, file://) mirrored by the server before\n" +
			"execution. Paired-end reads go in as forward,reverse pairs.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflowID := args[0]

			req := map[string]any{
				"workflow_id":  workflowID,
				"name":         name,
				"submitted_by": user,
			}

			var singles []map[string]any
			for _, locator := range files {
				singles = append(singles, map[string]any{"locator": locator})
			}
			if len(singles) > 0 {
				req["single_files"] = singles
			}

			var paired []map[string]any
			for _, pair := range pairs {
				fwd, rev, ok := strings.Cut(pair, ",")
				if !ok || fwd == "" || rev == "" {
					return fmt.Errorf("malformed pair %q, want forward,reverse", pair)
				}
				paired = append(paired, map[string]any{
					"forward": map[string]any{"locator": fwd},
					"reverse": map[string]any{"locator": rev},
				})
			}
			if len(paired) > 0 {
				req["paired_files"] = paired
			}

			resp, err := client.Post("/api/v1/submissions/", req)
			if err != nil {
				return fmt.Errorf("create submission: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			id, ok := data["id"].(string)
			if !ok {
				return fmt.Errorf("submission response missing 'id' field")
			}
			state, _ := data["state"].(string)
			fmt.Printf("Submission created: %s (state: %s)\n", id, state)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable submission name")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Submitting user (required)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Remote file locator (repeatable)")
	cmd.Flags().StringArrayVarP(&pairs, "pair", "p", nil, "Paired files as forward,reverse locators (repeatable)")
	cmd.MarkFlagRequired("user")
	return cmd
}
