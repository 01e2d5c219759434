package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"offliner/internal/download"
)

var addCmd = &cobra.Command{
	Use:     "add <uri>...",
	Aliases: []string{"get"},
	Short:   "Queue downloads on the running instance",
	Long: `Queue one or more content URIs on the running offliner daemon.
Adding an id that already exists merges the request into it.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetString("id")
		contentType, _ := cmd.Flags().GetString("type")
		cacheKey, _ := cmd.Flags().GetString("cache-key")
		rawKeys, _ := cmd.Flags().GetStringArray("stream-key")

		if id != "" && len(args) > 1 {
			fmt.Fprintln(os.Stderr, "Error: --id only makes sense with a single URI")
			os.Exit(1)
		}

		streamKeys, err := parseStreamKeys(rawKeys)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		for _, uri := range args {
			req := download.Request{
				ID:         id,
				Type:       contentType,
				URI:        uri,
				CacheKey:   cacheKey,
				StreamKeys: streamKeys,
			}
			if req.ID == "" {
				req.ID = uuid.New().String()
			}

			if err := callControl("POST", "/v1/downloads", req, nil); err != nil {
				fmt.Fprintf(os.Stderr, "Error adding %s: %v\n", uri, err)
				os.Exit(1)
			}
			fmt.Printf("queued %s (%s)\n", req.ID, uri)
		}
	},
}

// parseStreamKeys parses repeated "period.group.stream" flags.
func parseStreamKeys(raw []string) ([]download.StreamKey, error) {
	var keys []download.StreamKey
	for _, s := range raw {
		parts := strings.Split(s, ".")
		if len(parts) != 3 {
			return nil, fmt.Errorf("stream key %q must be period.group.stream", s)
		}
		var nums [3]int
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("stream key %q must be numeric", s)
			}
			nums[i] = n
		}
		keys = append(keys, download.StreamKey{Period: nums[0], Group: nums[1], Stream: nums[2]})
	}
	return keys, nil
}

func init() {
	addCmd.Flags().String("id", "", "content id (default: generated)")
	addCmd.Flags().String("type", "", "content type tag")
	addCmd.Flags().String("cache-key", "", "cache key override")
	addCmd.Flags().StringArray("stream-key", nil, "stream key as period.group.stream (repeatable)")
	rootCmd.AddCommand(addCmd)
}
