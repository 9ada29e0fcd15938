package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, "auto", cfg.Embedding.Provider)
	assert.Equal(t, 4, cfg.Embedding.Concurrency)
	assert.Equal(t, 50, cfg.Index.StreamBatchSize)
	assert.True(t, cfg.Index.EnableGraph)
	assert.Equal(t, 10*time.Second, cfg.VCS.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	original := DefaultConfig()
	original.Embedding.Provider = "openai"
	original.Embedding.Model = "text-embedding-3-large"
	original.Embedding.RequestsPerSecond = 2.5
	original.Index.Include = []string{"**/*.go", "**/*.py"}
	original.Index.CheckpointInterval = 45 * time.Second
	original.Watch.Debounce = 2 * time.Second
	original.Log.Format = "json"

	require.NoError(t, original.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	require.NoError(t, err, "a missing file yields defaults")
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	yml := "index:\n  stream_batch_size: 7\n  exclude: [\"gen/**\"]\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Index.StreamBatchSize)
	assert.Equal(t, []string{"gen/**"}, cfg.Index.Exclude)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 60, cfg.Index.ChunkLines)
	assert.Equal(t, 30*time.Second, cfg.Index.CheckpointInterval)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("index: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, DefaultConfig().Save(path))

	t.Setenv("CODEINDEX_EMBEDDING__PROVIDER", "local")
	t.Setenv("CODEINDEX_INDEX__STREAM_BATCH_SIZE", "5")
	t.Setenv("CODEINDEX_INDEX__ENABLE_GRAPH", "false")
	t.Setenv("CODEINDEX_INDEX__EXCLUDE", "vendor/**, gen/**")
	t.Setenv("CODEINDEX_WATCH__DEBOUNCE", "250ms")
	t.Setenv("CODEINDEX_DATA_DIR", "/var/lib/codeindex")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 5, cfg.Index.StreamBatchSize)
	assert.False(t, cfg.Index.EnableGraph)
	assert.Equal(t, []string{"vendor/**", "gen/**"}, cfg.Index.Exclude)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "/var/lib/codeindex", cfg.DataDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "bogus" }},
		{"batch too large", func(c *Config) { c.Embedding.BatchSize = 10000 }},
		{"negative concurrency", func(c *Config) { c.Embedding.Concurrency = -1 }},
		{"negative rate", func(c *Config) { c.Embedding.RequestsPerSecond = -1 }},
		{"negative retries", func(c *Config) { c.Embedding.MaxRetries = -1 }},
		{"base above max delay", func(c *Config) { c.Embedding.BaseDelay = time.Minute }},
		{"negative stream batch", func(c *Config) { c.Index.StreamBatchSize = -1 }},
		{"negative file size", func(c *Config) { c.Index.MaxFileSize = -1 }},
		{"bad glob", func(c *Config) { c.Index.Exclude = []string{"[unclosed"} }},
		{"zero vcs timeout", func(c *Config) { c.VCS.Timeout = 0 }},
		{"zero debounce", func(c *Config) { c.Watch.Debounce = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = ""
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data_dir")
	assert.Contains(t, err.Error(), "log.format")
}

func TestValidateProviderCase(t *testing.T) {
	for _, p := range []string{"", "auto", "Jina", "OPENAI", "local"} {
		cfg := DefaultConfig()
		cfg.Embedding.Provider = p
		assert.NoError(t, cfg.Validate(), p)
	}
}

func TestResolveDataDir(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("/repo", DefaultDataDir), cfg.ResolveDataDir("/repo"))

	cfg.DataDir = "/abs/data"
	assert.Equal(t, "/abs/data", cfg.ResolveDataDir("/repo"))
}

func TestRetry(t *testing.T) {
	e := DefaultConfig().Embedding
	rc := e.Retry()
	assert.Equal(t, 3, rc.MaxRetries)
	assert.Equal(t, time.Second, rc.BaseDelay)
	assert.Equal(t, 30*time.Second, rc.MaxDelay)
	assert.Greater(t, rc.Multiplier, 1.0)

	e.BaseDelay, e.MaxDelay, e.MaxRetries = 0, 0, 0
	rc = e.Retry()
	assert.Equal(t, 0, rc.MaxRetries)
	assert.Positive(t, rc.BaseDelay, "zero delays fall back to defaults")
}

func TestEffectiveCheckpointInterval(t *testing.T) {
	ix := DefaultConfig().Index
	assert.Equal(t, 30*time.Second, ix.EffectiveCheckpointInterval())

	ix.CheckpointInterval = 0
	assert.Negative(t, ix.EffectiveCheckpointInterval(), "zero disables autosave")
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", LogConfig{Level: "debug"}.SlogLevel().String())
	assert.Equal(t, "WARN", LogConfig{Level: "WARNING"}.SlogLevel().String())
	assert.Equal(t, "INFO", LogConfig{Level: "nonsense"}.SlogLevel().String())
}
