package cost

import (
	"github.com/rotisserie/eris"

	"github.com/synthbank/bankgen/internal/model"
)

// Params are the config values a stage estimate depends on.
type Params struct {
	Population int
	BatchSize  int
	Months     int
	MaxTokens  int
	Model      string
}

// Estimate is the projected volume and price of one stage.
type Estimate struct {
	Stage    model.Stage
	Calls    int64
	Tokens   int64
	CostUSD  float64
	Model    string
	PricedAs string
}

// Estimate projects token volume and cost for a stage. Every call is assumed
// to use its full max_tokens budget, priced at the output rate, so the figure
// is a deliberately conservative upper bound rather than a calibrated one.
//
//	personas:     calls = ceil(population / batch_size)
//	transactions: calls = population * months
func (c *Calculator) Estimate(stage model.Stage, p Params) (Estimate, error) {
	var calls int64
	switch stage {
	case model.StagePersonas:
		if p.Population <= 0 || p.BatchSize <= 0 {
			return Estimate{}, eris.Errorf("cost: personas estimate needs positive population and batch size (got %d, %d)", p.Population, p.BatchSize)
		}
		calls = int64((p.Population + p.BatchSize - 1) / p.BatchSize)
	case model.StageTransactions:
		calls = int64(p.Population) * int64(p.Months)
	default:
		return Estimate{}, eris.Wrapf(model.ErrInvalidStage, "cost: estimate %q", stage)
	}

	tokens := calls * int64(p.MaxTokens)
	rate, pricedAs := c.Rate(p.Model)

	return Estimate{
		Stage:    stage,
		Calls:    calls,
		Tokens:   tokens,
		CostUSD:  float64(tokens) / 1000 * rate.Output,
		Model:    p.Model,
		PricedAs: pricedAs,
	}, nil
}
