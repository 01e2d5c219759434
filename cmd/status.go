package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"offliner/internal/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Run: func(cmd *cobra.Command, args []string) {
		var status api.StatusResponse
		if err := callControl("GET", "/v1/status", nil, &status); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("initialized: %v\n", status.Initialized)
		fmt.Printf("idle:        %v\n", status.Idle)
		fmt.Printf("downloads:   %d\n", status.DownloadCount)
		fmt.Printf("requires:    %s\n", joinOrNone(status.Requirements))
		fmt.Printf("not met:     %s\n", joinOrNone(status.NotMetRequirements))
	},
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
