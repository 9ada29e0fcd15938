package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dshills/codeindex/internal/config"
	"github.com/dshills/codeindex/internal/indexer"
	"github.com/dshills/codeindex/pkg/types"
)

var (
	flagStreaming  bool
	flagBatchSize  int
	flagNoProgress bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the index for the project",
	Long: `Scan, chunk, embed and store every file under the project root.

An interrupted build (Ctrl-C or a crash) leaves a checkpoint behind and the
next run continues from it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, logger, err := openWorkspace(cmd, func(cfg *config.Config) {
			if flagBatchSize > 0 {
				cfg.Index.StreamBatchSize = flagBatchSize
			}
		})
		if err != nil {
			return err
		}
		defer closeWorkspace(ws, logger)

		var onProgress indexer.ProgressFunc
		var bar *progressReporter
		if !flagNoProgress {
			bar = newProgressReporter(os.Stderr)
			onProgress = bar.update
		}

		start := time.Now()
		err = ws.Index(cmd.Context(), flagStreaming, onProgress)
		if bar != nil {
			bar.finish()
		}

		if errors.Is(err, indexer.ErrCancelled) {
			fmt.Fprintln(cmd.OutOrStdout(), "Indexing interrupted. Run index again to resume.")
			return nil
		}
		if err != nil {
			return err
		}

		p := ws.Manager.GetProgress()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Indexed %s in %s\n", ws.Root, time.Since(start).Round(time.Millisecond))
		fmt.Fprintf(out, "  Files:   %d total, %d skipped\n", p.TotalFiles, p.SkippedFiles)
		fmt.Fprintf(out, "  Chunks:  %d total, %d embedded, %d failed\n", p.TotalChunks, p.EmbeddedChunks, p.FailedChunks)
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&flagStreaming, "streaming", false, "process files in batches with a checkpoint after each")
	indexCmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "files per streaming batch (default from config)")
	indexCmd.Flags().BoolVar(&flagNoProgress, "no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(indexCmd)
}

// progressReporter draws overall build progress, one tenth of a percent per step
type progressReporter struct {
	bar   *progressbar.ProgressBar
	phase types.Status
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{
		bar: progressbar.NewOptions(1000,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("starting"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (r *progressReporter) update(p types.IndexingProgress) {
	if p.Status != r.phase {
		r.phase = p.Status
		r.bar.Describe(fmt.Sprintf("%-9s", p.Status))
	}
	_ = r.bar.Set(int(p.OverallProgress * 10))
}

func (r *progressReporter) finish() {
	_ = r.bar.Finish()
}
