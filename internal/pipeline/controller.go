// Package pipeline sequences the generation stages behind config validation
// and a cost confirmation gate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/synthbank/bankgen/internal/cache"
	"github.com/synthbank/bankgen/internal/config"
	"github.com/synthbank/bankgen/internal/cost"
	"github.com/synthbank/bankgen/internal/generate"
	"github.com/synthbank/bankgen/internal/metrics"
	"github.com/synthbank/bankgen/internal/model"
	"github.com/synthbank/bankgen/pkg/llm"
)

// ErrDeclined is returned when the user declines a cost confirmation gate.
// It ends the run without being a failure.
var ErrDeclined = errors.New("declined at cost confirmation")

// BackendFactory builds the generation backend for a run.
type BackendFactory func(ctx context.Context, cfg *config.Config, apiKey string) (llm.Backend, error)

// DefaultBackend builds the backend named by cfg.Provider.
func DefaultBackend(ctx context.Context, cfg *config.Config, apiKey string) (llm.Backend, error) {
	return llm.NewBackend(ctx, cfg.Provider, apiKey, uint64(cfg.Seed))
}

// Options configures a Controller.
type Options struct {
	// ConfigPath is the settings file; empty means config.DefaultPath.
	ConfigPath string
	Confirmer  Confirmer
	Backend    BackendFactory
	Out        io.Writer
	Logger     *zap.Logger
	Metrics    *metrics.Generation
}

// Controller runs the CLI operations: validate, dry run, set config and
// generate.
type Controller struct {
	path     string
	explicit bool
	confirm  Confirmer
	backend  BackendFactory
	out      io.Writer
	log      *zap.Logger
	metrics  *metrics.Generation
	calc     *cost.Calculator
}

// New creates a Controller.
func New(opts Options) *Controller {
	c := &Controller{
		path:     opts.ConfigPath,
		explicit: opts.ConfigPath != "",
		confirm:  opts.Confirmer,
		backend:  opts.Backend,
		out:      opts.Out,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		calc:     cost.NewCalculator(cost.DefaultRates()),
	}
	if c.path == "" {
		c.path = config.DefaultPath
	}
	if c.confirm == nil {
		c.confirm = NewTerminalConfirmer(os.Stdin, os.Stdout)
	}
	if c.backend == nil {
		c.backend = DefaultBackend
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.log == nil {
		c.log = zap.L()
	}
	return c
}

func (c *Controller) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Controller) load() (*config.Config, error) {
	if c.explicit {
		return config.Load(c.path)
	}
	return config.Load("")
}

// Validate checks the settings file against config.Schema, printing one line
// per violation and a final verdict. A failing file returns an error wrapping
// config.ErrValidation.
func (c *Controller) Validate() (config.Report, error) {
	rep, err := config.Validate(c.path, config.Schema)
	if err != nil {
		return rep, err
	}

	for _, v := range rep.Violations {
		c.log.Error("config violation", zap.String("key", v.Key), zap.String("problem", v.String()))
		c.printf("%s", v.String())
	}
	if !rep.OK() {
		c.printf("Config validation failed: %d problem(s) in %s", len(rep.Violations), c.path)
		return rep, eris.Wrapf(config.ErrValidation, "%d problem(s) in %s", len(rep.Violations), c.path)
	}

	c.log.Info("config is valid", zap.String("path", c.path))
	c.printf("Config is valid: %s", c.path)
	return rep, nil
}

// DryRun prints what Generate would do for stages, including each stage's
// estimate, without generating or writing anything.
func (c *Controller) DryRun(stages []model.Stage) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = "generate-" + string(s)
	}
	c.printf("Dry run: would run %s", strings.Join(names, " and "))

	for _, s := range stages {
		est, err := c.calc.Estimate(s, estimateParams(cfg))
		if err != nil {
			return err
		}
		c.printf("  %s: %d calls, up to %d tokens, ~$%.2f (%s)", s, est.Calls, est.Tokens, est.CostUSD, est.PricedAs)
	}
	return nil
}

// SetConfig updates one key of the settings file, keeping its type.
func (c *Controller) SetConfig(key, value string) error {
	v, err := config.Set(c.path, key, value)
	if err != nil {
		c.log.Error("config update failed", zap.String("key", key), zap.Error(err))
		return err
	}
	c.log.Info("config updated", zap.String("key", key), zap.Any("value", v))
	c.printf("Updated config: %s = %v", key, v)
	return nil
}

// Summary describes a finished Generate call.
type Summary struct {
	RunID        string
	Backend      string
	Personas     *generate.PersonaResult
	Transactions *generate.TxResult
	Usage        llm.Usage
	CostUSD      float64
}

// Generate runs stages in order. Config is re-read before each stage, and
// each stage waits on the cost gate; a decline returns ErrDeclined. The
// credential is resolved before the first gate so a missing key fails before
// anything is asked or sent.
func (c *Controller) Generate(ctx context.Context, stages []model.Stage) (*Summary, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	apiKey, err := cfg.Credential()
	if err != nil {
		return nil, err
	}

	sum := &Summary{RunID: uuid.NewString()}
	log := c.log.With(zap.String("run_id", sum.RunID))
	log.Info("starting generation",
		zap.Strings("stages", stageNames(stages)),
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)

	var store cache.Cache
	defer func() {
		if store != nil {
			if err := store.Close(); err != nil {
				log.Warn("close response cache", zap.Error(err))
			}
		}
	}()

	base := cfg
	session := llm.NewSession(func(ctx context.Context) (*llm.Client, error) {
		backend, err := c.backend(ctx, base, apiKey)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: build backend")
		}
		store, err = openCache(ctx, base, log)
		if err != nil {
			return nil, err
		}
		return llm.NewClient(backend, llm.Options{
			Model:             base.Model,
			Temperature:       base.Temperature,
			MaxTokens:         int64(base.MaxTokens),
			Cache:             store,
			CacheTTL:          base.CacheTTL(),
			MaxConcurrency:    base.MaxConcurrency,
			RequestsPerSecond: base.RequestsPerSecond,
			Metrics:           c.metrics,
			Logger:            log,
		}), nil
	})

	for i, stage := range stages {
		if i > 0 {
			if cfg, err = c.load(); err != nil {
				return sum, err
			}
		}
		if err := c.gate(ctx, log, stage, cfg); err != nil {
			return sum, err
		}

		client, err := session.Client(ctx)
		if err != nil {
			return sum, err
		}
		sum.Backend = client.Backend()

		before := client.Usage()
		start := time.Now()
		if err := c.runStage(ctx, log, stage, cfg, client, sum); err != nil {
			return sum, err
		}

		after := client.Usage()
		used := llm.Usage{
			InputTokens:  after.InputTokens - before.InputTokens,
			OutputTokens: after.OutputTokens - before.OutputTokens,
		}
		spent := c.calc.Actual(pricedModel(cfg), used.InputTokens, used.OutputTokens)
		sum.Usage.InputTokens += used.InputTokens
		sum.Usage.OutputTokens += used.OutputTokens
		sum.CostUSD += spent

		log.Info("stage complete",
			zap.String("stage", string(stage)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int64("input_tokens", used.InputTokens),
			zap.Int64("output_tokens", used.OutputTokens),
			zap.Float64("cost_usd", spent),
		)
	}

	log.Info("generation complete",
		zap.Int64("input_tokens", sum.Usage.InputTokens),
		zap.Int64("output_tokens", sum.Usage.OutputTokens),
		zap.Float64("cost_usd", sum.CostUSD),
	)
	return sum, nil
}

func (c *Controller) gate(ctx context.Context, log *zap.Logger, stage model.Stage, cfg *config.Config) error {
	if stage == model.StagePersonas {
		if _, _, err := generate.Plan(cfg.NumUsers, cfg.BatchSize); err != nil {
			log.Error("invalid persona parameters", zap.Error(err))
			return err
		}
	}

	est, err := c.calc.Estimate(stage, estimateParams(cfg))
	if err != nil {
		return err
	}
	log.Info("cost estimate",
		zap.String("stage", string(stage)),
		zap.Int64("calls", est.Calls),
		zap.Int64("tokens", est.Tokens),
		zap.Float64("cost_usd", est.CostUSD),
		zap.String("priced_as", est.PricedAs),
	)

	ok, err := c.confirm.Confirm(ctx, est)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn("aborted by user", zap.String("stage", string(stage)))
		return eris.Wrapf(ErrDeclined, "stage %s", stage)
	}
	return nil
}

func (c *Controller) runStage(ctx context.Context, log *zap.Logger, stage model.Stage, cfg *config.Config, client *llm.Client, sum *Summary) error {
	mode := generate.Mode(strings.ToLower(cfg.Mode))
	switch stage {
	case model.StagePersonas:
		res, err := generate.NewPersonas(client, log, c.metrics).Run(ctx, generate.PersonaParams{
			Population: cfg.NumUsers,
			BatchSize:  cfg.BatchSize,
			Mode:       mode,
			OutputDir:  cfg.OutputDir,
		})
		sum.Personas = res
		return err
	case model.StageTransactions:
		res, err := generate.NewTransactions(client, log, c.metrics).Run(ctx, generate.TxParams{
			Months:    cfg.Months,
			Mode:      mode,
			OutputDir: cfg.OutputDir,
		})
		sum.Transactions = res
		return err
	default:
		return eris.Wrapf(model.ErrInvalidStage, "pipeline: run %q", stage)
	}
}

func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.Cache, error) {
	if cfg.CachePath == "" {
		return cache.NewMemory(), nil
	}
	s, err := cache.NewSQLite(cfg.CachePath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: open response cache")
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, eris.Wrap(err, "pipeline: migrate response cache")
	}

	n, err := s.Purge(ctx)
	if err != nil {
		log.Warn("purge response cache", zap.Error(err))
	} else if n > 0 {
		log.Info("purged expired cached responses", zap.Int("removed", n), zap.String("path", cfg.CachePath))
	}
	return s, nil
}

func estimateParams(cfg *config.Config) cost.Params {
	return cost.Params{
		Population: cfg.NumUsers,
		BatchSize:  cfg.BatchSize,
		Months:     cfg.Months,
		MaxTokens:  cfg.MaxTokens,
		Model:      pricedModel(cfg),
	}
}

// pricedModel is the rate table entry for cfg; offline runs cost nothing.
func pricedModel(cfg *config.Config) string {
	if strings.EqualFold(cfg.Provider, llm.ProviderOffline) {
		return llm.ProviderOffline
	}
	return cfg.Model
}

func stageNames(stages []model.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}
