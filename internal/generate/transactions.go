package generate

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/synthbank/bankgen/internal/jsonblock"
	"github.com/synthbank/bankgen/internal/metrics"
	"github.com/synthbank/bankgen/internal/model"
	"github.com/synthbank/bankgen/internal/prompt"
	"github.com/synthbank/bankgen/internal/table"
	"github.com/synthbank/bankgen/pkg/llm"
)

// TxParams configures one transaction stage run.
type TxParams struct {
	Months    int
	Mode      Mode
	OutputDir string
}

// TxResult summarises a transaction stage run.
type TxResult struct {
	Files          []string
	Transactions   int
	FailedPersonas int
	SkippedRows    int
	Flagged        int
}

// Transactions is the per-persona orchestrator for the transaction stage.
type Transactions struct {
	gen     Generator
	log     *zap.Logger
	metrics *metrics.Generation
}

// NewTransactions creates a transaction orchestrator. log and m may be nil.
func NewTransactions(gen Generator, log *zap.Logger, m *metrics.Generation) *Transactions {
	if log == nil {
		log = zap.L()
	}
	return &Transactions{gen: gen, log: log.With(zap.String("stage", string(model.StageTransactions))), metrics: m}
}

type txUnit struct {
	row     map[string]any
	persona model.Persona
}

// Run generates one history per persona in personas.csv and writes
// transactions/<user_id>.csv for each. A persona whose call or reply fails
// still gets an empty table.
func (o *Transactions) Run(ctx context.Context, p TxParams) (*TxResult, error) {
	if err := p.Mode.validate(); err != nil {
		return nil, err
	}
	if p.Months <= 0 {
		return nil, eris.Wrapf(ErrInvalidParams, "months must be positive, got %d", p.Months)
	}

	path := PersonaPath(p.OutputDir)
	rows, err := table.ReadRecords(path)
	if errors.Is(err, os.ErrNotExist) {
		o.log.Error("persona table missing", zap.String("path", path))
		return nil, eris.Wrapf(ErrPersonaTableMissing, "%s does not exist", path)
	}
	if err != nil {
		return nil, eris.Wrap(err, "generate: read personas")
	}

	res := &TxResult{}
	units := make([]txUnit, 0, len(rows))
	for i, row := range rows {
		persona := model.PersonaFromMap(row)
		if !validID(persona.UserID) {
			o.log.Warn("skipping persona row without usable user_id",
				zap.Int("row", i+1),
				zap.String("user_id", persona.UserID),
			)
			res.SkippedRows++
			continue
		}
		units = append(units, txUnit{row: row, persona: persona})
	}
	if len(units) == 0 {
		o.log.Error("persona table empty", zap.String("path", path))
		return nil, eris.Wrapf(ErrPersonaTableMissing, "%s has no personas", path)
	}

	reqs := make([]llm.Request, len(units))
	for i, u := range units {
		msgs, err := prompt.Transactions(u.row, p.Months)
		if err != nil {
			return nil, eris.Wrapf(err, "generate: build transaction prompt for %s", u.persona.UserID)
		}
		md := map[string]string{
			llm.MetaStage:  string(model.StageTransactions),
			llm.MetaMonths: strconv.Itoa(p.Months),
			llm.MetaUserID: u.persona.UserID,
		}
		if avg := u.persona.Income.AverageMonthly; avg != nil && *avg > 0 {
			md[llm.MetaMonthlyIncome] = strconv.FormatFloat(*avg, 'f', 2, 64)
		}
		reqs[i] = llm.Request{Messages: msgs, Metadata: md}
	}

	o.log.Info("generating transactions",
		zap.Int("personas", len(units)),
		zap.Int("months", p.Months),
		zap.String("mode", string(p.Mode)),
	)

	err = dispatch(ctx, o.gen, p.Mode, reqs, func(i int, out *llm.Result, callErr error) error {
		if callErr != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		u := units[i]
		records := o.parse(u, out, callErr, p.Months, res)

		file := TransactionPath(p.OutputDir, u.persona.UserID)
		if err := table.WriteRecords(file, records, model.TransactionColumns); err != nil {
			return eris.Wrapf(err, "generate: write transactions for %s", u.persona.UserID)
		}
		res.Files = append(res.Files, file)
		res.Transactions += len(records)
		o.metrics.ObserveRecords(string(model.StageTransactions), len(records))
		return nil
	})
	if err != nil {
		return res, eris.Wrap(err, "generate: transactions interrupted")
	}

	o.log.Info("transactions written",
		zap.Int("files", len(res.Files)),
		zap.Int("transactions", res.Transactions),
		zap.Int("failed_personas", res.FailedPersonas),
		zap.Int("flagged_histories", res.Flagged),
	)
	return res, nil
}

// parse returns the stamped records for one persona, or nil after logging
// exactly one error.
func (o *Transactions) parse(u txUnit, out *llm.Result, callErr error, months int, res *TxResult) []map[string]any {
	log := o.log.With(zap.String("user_id", u.persona.UserID))

	fail := func(msg string, err error) []map[string]any {
		log.Error(msg, zap.Error(err))
		res.FailedPersonas++
		o.metrics.ObserveFailure(string(model.StageTransactions))
		return nil
	}

	if callErr != nil {
		return fail("transaction generation failed", callErr)
	}
	records, skipped, err := jsonblock.DecodeList(out.Text)
	if err != nil {
		return fail("transaction reply unparseable", err)
	}
	if skipped > 0 {
		log.Warn("dropped non-object transaction entries", zap.Int("skipped", skipped))
	}

	for _, rec := range records {
		rec[model.KeyUserID] = u.persona.UserID
	}

	rep := model.Audit(records, u.persona, months)
	if rep.OK() {
		log.Debug("history audited",
			zap.Int("transactions", rep.Count),
			zap.String("income", rep.Income.StringFixed(2)),
			zap.String("spend", rep.Spend.StringFixed(2)),
		)
	} else {
		res.Flagged++
		findings := make([]string, len(rep.Findings))
		for i, f := range rep.Findings {
			findings[i] = f.Check + ": " + f.Detail
		}
		log.Warn("history deviates from requested properties",
			zap.Int("transactions", rep.Count),
			zap.Strings("findings", findings),
		)
	}
	return records
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
