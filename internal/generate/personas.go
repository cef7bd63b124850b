package generate

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/synthbank/bankgen/internal/ident"
	"github.com/synthbank/bankgen/internal/jsonblock"
	"github.com/synthbank/bankgen/internal/metrics"
	"github.com/synthbank/bankgen/internal/model"
	"github.com/synthbank/bankgen/internal/prompt"
	"github.com/synthbank/bankgen/internal/table"
	"github.com/synthbank/bankgen/pkg/llm"
)

// PersonaParams configures one persona stage run.
type PersonaParams struct {
	Population int
	BatchSize  int
	Mode       Mode
	OutputDir  string
}

// PersonaResult summarises a persona stage run.
type PersonaResult struct {
	Path          string
	Personas      []map[string]any
	BatchSize     int
	Batches       int
	FailedBatches int
}

// Personas is the batch orchestrator for the persona stage.
type Personas struct {
	gen     Generator
	log     *zap.Logger
	metrics *metrics.Generation
}

// NewPersonas creates a persona orchestrator. log and m may be nil.
func NewPersonas(gen Generator, log *zap.Logger, m *metrics.Generation) *Personas {
	if log == nil {
		log = zap.L()
	}
	return &Personas{gen: gen, log: log.With(zap.String("stage", string(model.StagePersonas))), metrics: m}
}

// Run generates p.Population personas in batches, assigns identifiers in
// generation order and writes personas.csv. A batch whose call or reply
// fails is logged and skipped. If no batch contributes, ErrNoPersonas is
// returned and no file is written.
func (o *Personas) Run(ctx context.Context, p PersonaParams) (*PersonaResult, error) {
	if err := p.Mode.validate(); err != nil {
		return nil, err
	}
	batches, size, err := Plan(p.Population, p.BatchSize)
	if err != nil {
		return nil, err
	}
	if size != p.BatchSize {
		o.log.Warn("batch size clamped to population",
			zap.Int("requested", p.BatchSize),
			zap.Int("batch_size", size),
		)
	}

	reqs := make([]llm.Request, len(batches))
	for i, b := range batches {
		msgs, err := prompt.Personas(b.Size)
		if err != nil {
			return nil, eris.Wrap(err, "generate: build persona prompt")
		}
		reqs[i] = llm.Request{
			Messages: msgs,
			Metadata: map[string]string{
				llm.MetaStage:      string(model.StagePersonas),
				llm.MetaCount:      strconv.Itoa(b.Size),
				llm.MetaBatchStart: strconv.Itoa(b.Start),
			},
		}
	}

	o.log.Info("generating personas",
		zap.Int("population", p.Population),
		zap.Int("batch_size", size),
		zap.Int("batches", len(batches)),
		zap.String("mode", string(p.Mode)),
	)

	res := &PersonaResult{
		Path:      PersonaPath(p.OutputDir),
		Personas:  make([]map[string]any, 0, p.Population),
		BatchSize: size,
		Batches:   len(batches),
	}

	err = dispatch(ctx, o.gen, p.Mode, reqs, func(i int, out *llm.Result, callErr error) error {
		if callErr != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		records, ok := o.parse(batches[i], out, callErr)
		if !ok {
			res.FailedBatches++
			o.metrics.ObserveFailure(string(model.StagePersonas))
			return nil
		}
		for j, rec := range records {
			rec[model.KeyUserID] = ident.Generate(IDPrefix, batches[i].Start+j)
			res.Personas = append(res.Personas, rec)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "generate: personas interrupted")
	}

	if len(res.Personas) == 0 {
		o.log.Error("no personas generated", zap.Int("failed_batches", res.FailedBatches))
		return res, eris.Wrapf(ErrNoPersonas, "%d of %d batches failed", res.FailedBatches, res.Batches)
	}

	if err := table.WriteRecords(res.Path, res.Personas, model.PersonaColumns); err != nil {
		return nil, eris.Wrap(err, "generate: write personas")
	}
	o.metrics.ObserveRecords(string(model.StagePersonas), len(res.Personas))

	o.log.Info("personas written",
		zap.String("path", res.Path),
		zap.Int("personas", len(res.Personas)),
		zap.Int("failed_batches", res.FailedBatches),
	)
	return res, nil
}

// parse turns one batch reply into at most b.Size records. It logs exactly
// one error when the batch contributes nothing.
func (o *Personas) parse(b Batch, out *llm.Result, callErr error) ([]map[string]any, bool) {
	log := o.log.With(zap.Int("batch", b.Index), zap.Int("batch_start", b.Start))

	if callErr != nil {
		log.Error("persona batch failed", zap.Error(callErr))
		return nil, false
	}

	records, skipped, err := jsonblock.DecodeList(out.Text)
	if err != nil {
		log.Error("persona batch unparseable", zap.Error(err))
		return nil, false
	}
	if len(records) == 0 {
		log.Error("persona batch empty", zap.Int("skipped", skipped))
		return nil, false
	}

	if skipped > 0 {
		log.Warn("dropped non-object persona entries", zap.Int("skipped", skipped))
	}
	switch {
	case len(records) > b.Size:
		log.Warn("persona batch over-long, truncating",
			zap.Int("requested", b.Size),
			zap.Int("received", len(records)),
		)
		records = records[:b.Size]
	case len(records) < b.Size:
		log.Warn("persona batch short",
			zap.Int("requested", b.Size),
			zap.Int("received", len(records)),
		)
	}

	log.Debug("persona batch parsed", zap.Int("personas", len(records)), zap.Bool("cached", out.Cached))
	return records, true
}
