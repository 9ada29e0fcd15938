package config

import "time"

// Config is the top-level codeindex configuration, corresponding to .codeindex.yml.
type Config struct {
	// DataDir holds the metadata database and vector snapshot. Relative
	// paths are resolved against the project root.
	DataDir   string          `yaml:"data_dir" koanf:"data_dir"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Index     IndexConfig     `yaml:"index" koanf:"index"`
	VCS       VCSConfig       `yaml:"vcs" koanf:"vcs"`
	Watch     WatchConfig     `yaml:"watch" koanf:"watch"`
	Log       LogConfig       `yaml:"log" koanf:"log"`
}

// EmbeddingConfig selects the provider and tunes the resilient client.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider" koanf:"provider"` // auto, jina, openai, local
	Model             string        `yaml:"model" koanf:"model"`
	APIKey            string        `yaml:"api_key,omitempty" koanf:"api_key"`
	BaseURL           string        `yaml:"base_url,omitempty" koanf:"base_url"`
	BatchSize         int           `yaml:"batch_size" koanf:"batch_size"`
	Concurrency       int           `yaml:"concurrency" koanf:"concurrency"`
	RequestsPerSecond float64       `yaml:"requests_per_second" koanf:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries" koanf:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay" koanf:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" koanf:"max_delay"`
	CacheSize         int           `yaml:"cache_size" koanf:"cache_size"`
}

// IndexConfig controls what is indexed and how builds run.
type IndexConfig struct {
	StreamBatchSize int  `yaml:"stream_batch_size" koanf:"stream_batch_size"`
	EnableGraph     bool `yaml:"enable_graph" koanf:"enable_graph"`
	// CheckpointInterval is the autosave period; 0 disables autosave.
	CheckpointInterval time.Duration `yaml:"checkpoint_interval" koanf:"checkpoint_interval"`
	Include            []string      `yaml:"include" koanf:"include"`
	Exclude            []string      `yaml:"exclude" koanf:"exclude"`
	MaxFileSize        int64         `yaml:"max_file_size" koanf:"max_file_size"`
	ChunkLines         int           `yaml:"chunk_lines" koanf:"chunk_lines"`
	ChunkOverlap       int           `yaml:"chunk_overlap" koanf:"chunk_overlap"`
}

// VCSConfig bounds git invocations.
type VCSConfig struct {
	Timeout time.Duration `yaml:"timeout" koanf:"timeout"`
	// PollInterval is how often watch mode checks for a branch switch; 0 disables it.
	PollInterval time.Duration `yaml:"poll_interval" koanf:"poll_interval"`
}

// WatchConfig tunes the file watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" koanf:"debounce"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`   // debug, info, warn, error
	Format string `yaml:"format" koanf:"format"` // text or json
}
