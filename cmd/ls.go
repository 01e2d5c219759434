package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"offliner/internal/download"
)

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List unfinished downloads",
	Run: func(cmd *cobra.Command, args []string) {
		var recs []download.Record
		if err := callControl("GET", "/v1/downloads", nil, &recs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(recs) == 0 {
			fmt.Println("no downloads")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tBYTES\tNAME\tURI")
		for _, rec := range recs {
			name := rec.Filename
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", rec.ID, rec.State, rec.Counters.BytesDownloaded, name, rec.URI)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
