package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <path>...",
	Short: "Re-index changed files",
	Long: `Classify each path as added, modified or deleted by comparing the disk with
the index, then update only those files. Paths are relative to the root.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, logger, err := openWorkspace(cmd, nil)
		if err != nil {
			return err
		}
		defer closeWorkspace(ws, logger)

		cs, err := ws.Update(cmd.Context(), args)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, p := range cs.Added {
			fmt.Fprintf(out, "A %s\n", p)
		}
		for _, p := range cs.Modified {
			fmt.Fprintf(out, "M %s\n", p)
		}
		for _, p := range cs.Deleted {
			fmt.Fprintf(out, "D %s\n", p)
		}
		if cs.IsEmpty() {
			fmt.Fprintln(out, "Index already up to date.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
