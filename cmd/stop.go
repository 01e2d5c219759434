package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop [id]",
	Short: "Stop one download, or all of them",
	Long: `Stop downloads until a matching start. An application-defined reason
(any positive integer) can be attached with --reason and is visible in
the download state.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var body any
		if cmd.Flags().Changed("reason") {
			reason, _ := cmd.Flags().GetInt("reason")
			body = map[string]int{"reason": reason}
		}

		path := "/v1/stop"
		if len(args) == 1 {
			path = "/v1/downloads/" + args[0] + "/stop"
		}
		if err := callControl("POST", path, body, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("stopped")
	},
}

func init() {
	stopCmd.Flags().Int("reason", 0, "application-defined stop reason")
	rootCmd.AddCommand(stopCmd)
}
