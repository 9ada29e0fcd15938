package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/codeindex/internal/config"
	"github.com/dshills/codeindex/internal/workspace"
)

var (
	flagRoot      string
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "codeindex",
	Short: "Incremental code indexer with semantic search over MCP",
	Long: `codeindex scans a project, splits files into chunks, embeds them and keeps
the index current as files change or the git branch switches.

Logs go to stderr; stdout is reserved for command output and the MCP protocol.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", ".", "project root to index")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default <root>/"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: text or json")
}

// loadConfig reads the config for --root and applies the logging flags
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
	} else {
		cfg, err = config.LoadForRoot(flagRoot)
	}
	if err != nil {
		return nil, err
	}

	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Log.Format = flagLogFormat
	}
	return cfg, nil
}

// openWorkspace loads the config and opens the workspace for --root. edit,
// when set, adjusts the config before it is validated.
func openWorkspace(cmd *cobra.Command, edit func(*config.Config)) (*workspace.Workspace, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if edit != nil {
		edit(cfg)
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	ws, err := workspace.Open(cmd.Context(), flagRoot, cfg, workspace.Options{Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("open workspace: %w", err)
	}
	return ws, logger, nil
}

// closeWorkspace closes ws and reports a failure on stderr
func closeWorkspace(ws *workspace.Workspace, logger *slog.Logger) {
	if err := ws.Close(); err != nil {
		logger.Error("close workspace", slog.String("error", err.Error()))
	}
}
