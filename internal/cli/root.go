// Package cli implements the seqflow command line client.
package cli

import (
	"log/slog"
	"os"

	"github.com/me/seqflow/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking SEQFLOW_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("SEQFLOW_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the seqflow CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "seqflow",
		Short: "SeqFlow — analysis submission pipeline for sequencing data",
		Long:  "SeqFlow submits, monitors, and manages analysis workflow runs on a remote execution backend.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "SeqFlow server URL (or SEQFLOW_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newListCmd(),
		newResultCmd(),
		newDeleteCmd(),
		newWorkflowsCmd(),
	)

	return root
}
