package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Compare the checked-out branch with the indexed one and update the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, logger, err := openWorkspace(cmd, nil)
		if err != nil {
			return err
		}
		defer closeWorkspace(ws, logger)

		ctx := cmd.Context()
		if !ws.Branch.IsRepository(ctx) {
			return errors.New("project root is not a git repository")
		}

		res := ws.Branch.CheckBranchChange(ctx)
		out := cmd.OutOrStdout()
		switch {
		case !res.Changed:
			fmt.Fprintf(out, "On %s, index is current.\n", res.CurrentBranch)
		case res.ChangedFiles == nil:
			fmt.Fprintf(out, "Switched %s -> %s, index rebuilt.\n", res.PreviousBranch, res.CurrentBranch)
		default:
			fmt.Fprintf(out, "Switched %s -> %s, %d files updated.\n",
				res.PreviousBranch, res.CurrentBranch, len(res.ChangedFiles))
		}
		if ws.Branch.HasUncommittedChanges(ctx) {
			fmt.Fprintln(out, "Work tree has uncommitted changes.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(branchCmd)
}
