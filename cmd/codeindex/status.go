package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var flagStatusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored index summary and any resumable checkpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, logger, err := openWorkspace(cmd, nil)
		if err != nil {
			return err
		}
		defer closeWorkspace(ws, logger)

		st, err := ws.Status(cmd.Context())
		if err != nil {
			return err
		}

		if flagStatusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Root:\t%s\n", st.Root)
		fmt.Fprintf(tw, "Status:\t%s\n", st.Index.Status)
		if st.Index.LastIndexedAt.IsZero() {
			fmt.Fprintf(tw, "Last indexed:\tnever\n")
		} else {
			fmt.Fprintf(tw, "Last indexed:\t%s\n", st.Index.LastIndexedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(tw, "Files:\t%d\n", st.Index.TotalFiles)
		fmt.Fprintf(tw, "Chunks:\t%d (%d embedded, %d failed)\n",
			st.Index.TotalChunks, st.Index.EmbeddedChunks, st.Index.FailedChunks)
		fmt.Fprintf(tw, "Vectors:\t%d\n", st.Vectors)
		fmt.Fprintf(tw, "Model:\t%s\n", st.Index.Model)
		if st.Branch != "" {
			fmt.Fprintf(tw, "Branch:\t%s (indexed on %s)\n", st.Branch, st.Index.Branch)
		}
		if st.Graph != nil {
			fmt.Fprintf(tw, "Graph:\t%d entities, %d relations\n", st.Graph.Entities, st.Graph.Relations)
		}
		if cp := st.Checkpoint; cp != nil {
			fmt.Fprintf(tw, "Checkpoint:\t%s phase, last path %q, saved %s\n",
				cp.Phase, cp.LastProcessedPath, cp.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&flagStatusJSON, "json", false, "print the status as JSON")
	rootCmd.AddCommand(statusCmd)
}
