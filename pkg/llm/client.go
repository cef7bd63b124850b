package llm

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/synthbank/bankgen/internal/cache"
	"github.com/synthbank/bankgen/internal/metrics"
	"github.com/synthbank/bankgen/internal/resilience"
)

// DefaultCacheTTL applies when Options.CacheTTL is zero.
const DefaultCacheTTL = time.Hour

// Options configures a Client.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64

	// Cache is optional; nil disables response caching.
	Cache    cache.Cache
	CacheTTL time.Duration

	// Retry wraps every backend call. Zero fields fall back to
	// resilience.DefaultPolicy.
	Retry resilience.Policy

	// MaxConcurrency bounds ChatAll. Zero means unbounded.
	MaxConcurrency int

	// RequestsPerSecond paces backend calls. Zero means unlimited.
	RequestsPerSecond float64

	Metrics *metrics.Generation
	Logger  *zap.Logger
}

// Client fronts a Backend. It is safe for concurrent use.
type Client struct {
	backend Backend
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger

	mu    sync.Mutex
	usage Usage
}

// NewClient wraps backend with opts.
func NewClient(backend Backend, opts Options) *Client {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}

	c := &Client{
		backend: backend,
		opts:    opts,
		log:     opts.Logger.With(zap.String("backend", backend.Name())),
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// Backend returns the backend name.
func (c *Client) Backend() string { return c.backend.Name() }

// Usage returns the tokens consumed by uncached calls so far.
func (c *Client) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Chat sends one request and blocks for its result. Transient backend
// failures are retried; the caller sees only the final outcome.
func (c *Client) Chat(ctx context.Context, req Request) (*Result, error) {
	req = c.withDefaults(req)
	name := c.backend.Name()

	key := c.cacheKey(req)
	if res := c.lookup(ctx, key); res != nil {
		c.opts.Metrics.ObserveCacheHit()
		c.opts.Metrics.ObserveRequest(name, metrics.OutcomeCached, 0)
		return res, nil
	}

	policy := c.opts.Retry
	if policy.OnRetry == nil {
		logRetry := resilience.LogRetries(c.log, "llm.chat")
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			c.opts.Metrics.ObserveRetry(name)
			logRetry(attempt, delay, err)
		}
	}

	start := time.Now()
	res, err := resilience.Do(ctx, policy, func(ctx context.Context) (*Result, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "llm: rate limit wait")
			}
		}
		return c.backend.Complete(ctx, req)
	})
	elapsed := time.Since(start)
	if err != nil {
		c.opts.Metrics.ObserveRequest(name, metrics.OutcomeError, elapsed)
		return nil, eris.Wrapf(err, "llm: %s chat", name)
	}

	c.opts.Metrics.ObserveRequest(name, metrics.OutcomeSuccess, elapsed)
	c.opts.Metrics.ObserveTokens(res.Usage.InputTokens, res.Usage.OutputTokens)
	c.mu.Lock()
	c.usage.InputTokens += res.Usage.InputTokens
	c.usage.OutputTokens += res.Usage.OutputTokens
	c.mu.Unlock()

	c.store(ctx, key, res)
	return res, nil
}

// ChatAll issues every request concurrently and waits for all of them.
// Outcomes are in input order and one failure does not affect the others.
func (c *Client) ChatAll(ctx context.Context, reqs []Request) []Outcome {
	out := make([]Outcome, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if c.opts.MaxConcurrency > 0 {
		g.SetLimit(c.opts.MaxConcurrency)
	}

	for i, req := range reqs {
		g.Go(func() error {
			res, err := c.Chat(gctx, req)
			out[i] = Outcome{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (c *Client) withDefaults(req Request) Request {
	if req.Model == "" {
		req.Model = c.opts.Model
	}
	if req.Temperature == nil {
		req.Temperature = Float(c.opts.Temperature)
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.opts.MaxTokens
	}
	return req
}

type cacheKeyPayload struct {
	Backend string  `json:"backend"`
	Request Request `json:"request"`
}

func (c *Client) cacheKey(req Request) string {
	if c.opts.Cache == nil {
		return ""
	}
	key, err := cache.Key(cacheKeyPayload{Backend: c.backend.Name(), Request: req})
	if err != nil {
		c.log.Warn("llm: cache key failed", zap.Error(err))
		return ""
	}
	return key
}

func (c *Client) lookup(ctx context.Context, key string) *Result {
	if key == "" {
		return nil
	}
	entry, err := c.opts.Cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("llm: cache get failed", zap.Error(err))
		return nil
	}
	if entry == nil {
		return nil
	}

	var res Result
	if err := json.Unmarshal(entry.Value, &res); err != nil {
		c.log.Warn("llm: cached response unreadable", zap.Error(err))
		return nil
	}
	res.Cached = true
	return &res
}

func (c *Client) store(ctx context.Context, key string, res *Result) {
	if key == "" {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		c.log.Warn("llm: cache encode failed", zap.Error(err))
		return
	}
	if err := c.opts.Cache.Set(ctx, key, b, c.opts.CacheTTL); err != nil {
		c.log.Warn("llm: cache set failed", zap.Error(err))
	}
}
