package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeindex/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		flagConfig, flagLogLevel, flagLogFormat = "", "", ""
		flagNoProgress, flagStatusJSON, flagInitForce = false, false, false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInitWritesDefaults(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "init", "--root", dir)
	require.NoError(t, err)
	assert.Contains(t, out, config.FileName)

	cfg, err := config.LoadForRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)

	_, err = execute(t, "init", "--root", dir)
	assert.Error(t, err)

	_, err = execute(t, "init", "--root", dir, "--force")
	assert.NoError(t, err)
}

func TestIndexThenStatus(t *testing.T) {
	t.Setenv("CODEINDEX_EMBEDDING__PROVIDER", "local")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"),
		[]byte("package main\n\nfunc main() {}\n"), 0o644))

	out, err := execute(t, "index", "--root", dir, "--no-progress", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Files:   1 total")

	out, err = execute(t, "status", "--root", dir, "--json", "--log-level", "error")
	require.NoError(t, err)

	var st struct {
		Index struct {
			Status     string
			TotalFiles int
		}
		Checkpoint *json.RawMessage
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "done", st.Index.Status)
	assert.Equal(t, 1, st.Index.TotalFiles)
	assert.Nil(t, st.Checkpoint)
}

func TestUpdateRequiresPaths(t *testing.T) {
	_, err := execute(t, "update", "--root", t.TempDir())
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "codeindex dev")
	assert.Contains(t, out, "SQLite Driver:")
}
