package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/dshills/codeindex/internal/storage"
)

// CacheStore is a persistent embedding cache. GetEmbeddingCache returns
// storage.ErrNotFound on a miss.
type CacheStore interface {
	GetEmbeddingCache(ctx context.Context, key string) ([]float32, error)
	SetEmbeddingCache(ctx context.Context, key string, vector []float32) error
}

// ClientOptions configures the resilient client
type ClientOptions struct {
	// Model namespaces cache keys. Defaults to the inner Provider's model.
	Model string
	// Cache is the in-memory layer; nil disables it
	Cache *Cache
	// Store is the persistent layer; nil disables it
	Store CacheStore
	// RequestsPerSecond limits calls to the inner client; 0 disables limiting
	RequestsPerSecond float64
	Burst             int
	Retry             RetryConfig
	// MaxBatchSize splits large requests into several inner calls
	MaxBatchSize int
	Logger       *slog.Logger
}

// ClientStats counts client activity since creation
type ClientStats struct {
	CacheHits int64
	StoreHits int64
	Embedded  int64
	Calls     int64
	Retries   int64
	Failures  int64
}

// Client wraps an EmbeddingClient with caching, rate limiting and retry.
// It is safe for concurrent use.
type Client struct {
	inner   EmbeddingClient
	model   string
	cache   *Cache
	store   CacheStore
	limiter *rate.Limiter
	retry   RetryConfig
	batch   int
	logger  *slog.Logger

	cacheHits atomic.Int64
	storeHits atomic.Int64
	embedded  atomic.Int64
	calls     atomic.Int64
	retries   atomic.Int64
	failures  atomic.Int64
}

var _ EmbeddingClient = (*Client)(nil)

// NewClient wraps inner. Zero-valued options select the package defaults.
func NewClient(inner EmbeddingClient, opts ClientOptions) *Client {
	model := opts.Model
	if model == "" {
		if p, ok := inner.(Provider); ok {
			model = p.Model()
		}
	}
	retry := opts.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}
	batch := opts.MaxBatchSize
	if batch <= 0 || batch > MaxBatchSize {
		batch = MaxBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		inner:   inner,
		model:   model,
		cache:   opts.Cache,
		store:   opts.Store,
		limiter: limiter,
		retry:   retry,
		batch:   batch,
		logger:  logger,
	}
}

// Model returns the model name used to namespace cache keys
func (c *Client) Model() string {
	return c.model
}

// GenerateEmbedding returns one vector per text. Cached vectors are served
// without calling the inner client; the rest are embedded in sub-batches, each
// rate limited and retried with exponential backoff. An error means at least one
// sub-batch exhausted its retries and is wrapped with ErrProviderFailed.
func (c *Client) GenerateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	// Identical texts share one inner request
	missing := make(map[string][]int)
	var order []string
	for i, text := range texts {
		keys[i] = CacheKey(c.model, text)
		if vec, ok := c.lookup(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		if _, seen := missing[text]; !seen {
			order = append(order, text)
		}
		missing[text] = append(missing[text], i)
	}

	for start := 0; start < len(order); start += c.batch {
		end := start + c.batch
		if end > len(order) {
			end = len(order)
		}
		batch := order[start:end]

		vectors, err := c.call(ctx, batch)
		if err != nil {
			c.failures.Add(1)
			return nil, err
		}

		for j, text := range batch {
			vec := vectors[j]
			key := keys[missing[text][0]]
			c.remember(ctx, key, vec)
			for _, idx := range missing[text] {
				out[idx] = copyVector(vec)
			}
		}
		c.embedded.Add(int64(len(batch)))
	}

	return out, nil
}

// call runs one inner request under the limiter with retries
func (c *Client) call(ctx context.Context, texts []string) ([][]float32, error) {
	attempt := 0
	vectors, err := retryWithBackoff(ctx, c.retry, func() ([][]float32, error) {
		if attempt > 0 {
			c.retries.Add(1)
			c.logger.Debug("retrying embedding request",
				slog.Int("attempt", attempt+1),
				slog.Int("texts", len(texts)))
		}
		attempt++

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		c.calls.Add(1)

		vecs, err := c.inner.GenerateEmbedding(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(vecs), len(texts))
		}
		return vecs, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrProviderFailed, attempt, err)
	}
	return vectors, nil
}

func (c *Client) lookup(ctx context.Context, key string) ([]float32, bool) {
	if c.cache != nil {
		if vec, ok := c.cache.Get(key); ok {
			c.cacheHits.Add(1)
			return vec, true
		}
	}
	if c.store == nil {
		return nil, false
	}

	vec, err := c.store.GetEmbeddingCache(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("embedding cache read failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	c.storeHits.Add(1)
	if c.cache != nil {
		c.cache.Set(key, vec)
	}
	return vec, true
}

func (c *Client) remember(ctx context.Context, key string, vec []float32) {
	if c.cache != nil {
		c.cache.Set(key, vec)
	}
	if c.store != nil {
		if err := c.store.SetEmbeddingCache(ctx, key, vec); err != nil {
			c.logger.Warn("embedding cache write failed", slog.String("error", err.Error()))
		}
	}
}

// Stats returns a snapshot of the client counters
func (c *Client) Stats() ClientStats {
	return ClientStats{
		CacheHits: c.cacheHits.Load(),
		StoreHits: c.storeHits.Load(),
		Embedded:  c.embedded.Load(),
		Calls:     c.calls.Load(),
		Retries:   c.retries.Load(),
		Failures:  c.failures.Load(),
	}
}
