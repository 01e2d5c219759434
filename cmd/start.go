package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:     "start [id]",
	Aliases: []string{"resume"},
	Short:   "Resume one download, or all of them",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "/v1/start"
		if len(args) == 1 {
			path = "/v1/downloads/" + args[0] + "/start"
		}
		if err := callControl("POST", path, nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("started")
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
