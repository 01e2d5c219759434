package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Remove downloads and their cached bytes",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		for _, id := range args {
			if err := callControl("DELETE", "/v1/downloads/"+id, nil, nil); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing %s: %v\n", id, err)
				os.Exit(1)
			}
			fmt.Printf("removing %s\n", id)
		}
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
