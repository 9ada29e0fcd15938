// Package embedder generates vector embeddings for code chunks.
//
// Providers (Jina AI over HTTP, OpenAI through go-openai, and a deterministic
// local provider) implement EmbeddingClient: one vector per input text, and a
// call may fail as a whole. Client wraps any EmbeddingClient with the
// resilience the indexing pipeline relies on.
//
// # Basic Usage
//
//	provider, err := embedder.New(embedder.Config{Provider: "auto"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	client := embedder.NewClient(provider, embedder.ClientOptions{
//	    Cache:             embedder.NewCache(10000),
//	    Store:             metadataStore, // persistent cache, optional
//	    RequestsPerSecond: 5,
//	})
//	vectors, err := client.GenerateEmbedding(ctx, []string{chunk.Content})
//
// # Caching
//
// Vectors are cached under CacheKey(model, text). Lookups go to the in-memory
// LRU first, then to the persistent store. Identical texts within one request
// are embedded once.
//
// # Rate Limiting and Retry
//
// Every request to the provider waits on a token bucket (golang.org/x/time/rate)
// and is retried with exponential backoff: 100ms initial delay, doubling, capped
// at 5s, MaxRetries retries after the first attempt. Validation errors are never
// retried. When the budget is exhausted the error wraps ErrProviderFailed.
//
// # Provider Selection
//
// With Provider "auto" (or empty), New picks Jina if JINA_API_KEY is set, then
// OpenAI if OPENAI_API_KEY is set, and falls back to the local provider.
package embedder
