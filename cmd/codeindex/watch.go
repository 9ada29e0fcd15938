package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
)

var flagWatchIndex bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index current as files change and branches switch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, logger, err := openWorkspace(cmd, nil)
		if err != nil {
			return err
		}
		defer closeWorkspace(ws, logger)

		ctx := cmd.Context()
		if flagWatchIndex {
			if err := ws.Index(ctx, true, nil); err != nil {
				return err
			}
		}

		logger.Info("watching", slog.String("root", ws.Root))
		err = ws.Watch(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().BoolVar(&flagWatchIndex, "index", false, "run a streaming build before watching")
	rootCmd.AddCommand(watchCmd)
}
