package config

import "time"

// DefaultDataDir is relative to the project root
const DefaultDataDir = ".codeindex"

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir,
		Embedding: EmbeddingConfig{
			Provider:          "auto",
			BatchSize:         32,
			Concurrency:       4,
			RequestsPerSecond: 0,
			MaxRetries:        3,
			BaseDelay:         time.Second,
			MaxDelay:          30 * time.Second,
			CacheSize:         10000,
		},
		Index: IndexConfig{
			StreamBatchSize:    50,
			EnableGraph:        true,
			CheckpointInterval: 30 * time.Second,
			Include:            []string{},
			Exclude:            []string{},
			MaxFileSize:        1 << 20,
			ChunkLines:         60,
			ChunkOverlap:       10,
		},
		VCS: VCSConfig{
			Timeout:      10 * time.Second,
			PollInterval: 5 * time.Second,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
