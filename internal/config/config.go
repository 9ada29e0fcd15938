package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/dshills/codeindex/internal/embedder"
)

// FileName is the per-project configuration file looked up in the root
const FileName = ".codeindex.yml"

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: CODEINDEX_EMBEDDING__PROVIDER sets embedding.provider.
const EnvPrefix = "CODEINDEX_"

// listKeys hold comma separated values when set from the environment
var listKeys = map[string]bool{
	"index.include": true,
	"index.exclude": true,
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CODEINDEX_*). A missing file is not an
// error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// LoadForRoot loads FileName from root
func LoadForRoot(root string) (*Config, error) {
	return Load(filepath.Join(root, FileName))
}

func envKey(name, value string) (string, interface{}) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	return key, value
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[string]bool{
	embedder.ProviderJina:   true,
	embedder.ProviderOpenAI: true,
	embedder.ProviderLocal:  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Validate checks that the configuration contains valid values. All problems
// are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	e := c.Embedding
	if p := strings.ToLower(e.Provider); p != "" && p != "auto" && !validProviders[p] {
		errs = append(errs, fmt.Errorf("invalid embedding.provider %q: must be one of auto, jina, openai, local", e.Provider))
	}
	if e.BatchSize < 0 || e.BatchSize > embedder.MaxBatchSize {
		errs = append(errs, fmt.Errorf("embedding.batch_size must be between 0 and %d, got %d", embedder.MaxBatchSize, e.BatchSize))
	}
	if e.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("embedding.concurrency must be >= 0, got %d", e.Concurrency))
	}
	if e.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("embedding.requests_per_second must be >= 0, got %g", e.RequestsPerSecond))
	}
	if e.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("embedding.max_retries must be >= 0, got %d", e.MaxRetries))
	}
	if e.BaseDelay < 0 || e.MaxDelay < 0 {
		errs = append(errs, errors.New("embedding delays must not be negative"))
	}
	if e.MaxDelay > 0 && e.BaseDelay > e.MaxDelay {
		errs = append(errs, fmt.Errorf("embedding.base_delay %s exceeds max_delay %s", e.BaseDelay, e.MaxDelay))
	}
	if e.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("embedding.cache_size must be >= 0, got %d", e.CacheSize))
	}

	ix := c.Index
	if ix.StreamBatchSize < 0 {
		errs = append(errs, fmt.Errorf("index.stream_batch_size must be >= 0, got %d", ix.StreamBatchSize))
	}
	if ix.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("index.max_file_size must be >= 0, got %d", ix.MaxFileSize))
	}
	if ix.ChunkLines < 0 || ix.ChunkOverlap < 0 {
		errs = append(errs, errors.New("index chunk sizes must not be negative"))
	}
	for _, pattern := range append(append([]string(nil), ix.Include...), ix.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("invalid glob %q", pattern))
		}
	}

	if c.VCS.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("vcs.timeout must be positive, got %s", c.VCS.Timeout))
	}
	if c.VCS.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("vcs.poll_interval must be >= 0, got %s", c.VCS.PollInterval))
	}
	if c.Watch.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must be positive, got %s", c.Watch.Debounce))
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("invalid log.level %q: must be one of debug, info, warn, error", c.Log.Level))
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ResolveDataDir returns DataDir as an absolute path. Relative values are
// taken relative to root.
func (c *Config) ResolveDataDir(root string) string {
	if filepath.IsAbs(c.DataDir) {
		return c.DataDir
	}
	return filepath.Join(root, c.DataDir)
}

// Retry returns the embedder retry settings. Zero delays fall back to the
// embedder defaults.
func (e EmbeddingConfig) Retry() embedder.RetryConfig {
	rc := embedder.DefaultRetryConfig()
	rc.MaxRetries = e.MaxRetries
	if e.BaseDelay > 0 {
		rc.BaseDelay = e.BaseDelay
	}
	if e.MaxDelay > 0 {
		rc.MaxDelay = e.MaxDelay
	}
	return rc
}

// EffectiveCheckpointInterval maps the configured value onto the indexer's
// convention, where a negative interval disables autosave.
func (ix IndexConfig) EffectiveCheckpointInterval() time.Duration {
	if ix.CheckpointInterval == 0 {
		return -1
	}
	return ix.CheckpointInterval
}
