package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Bounds requested from the generator for one history.
const (
	MinHistoryVolume = 60
	MaxHistoryVolume = 150

	followUpWindow  = 5 * 24 * time.Hour
	minFollowUps    = 2
	incomeTolerance = 0.15
	minSpendShare   = 0.70
	maxSpendShare   = 0.90
)

// Audit check names.
const (
	CheckVolume      = "volume"
	CheckSchema      = "schema"
	CheckSign        = "sign"
	CheckIncomeTotal = "income_total"
	CheckSpendShare  = "spend_share"
	CheckFollowUp    = "follow_up"
)

// Finding is one deviation from what the generator was asked for.
type Finding struct {
	Check  string
	Detail string
}

// Report summarises a generated history against its persona.
type Report struct {
	Count    int
	Income   decimal.Decimal
	Spend    decimal.Decimal
	Findings []Finding
}

// OK is true when the history met every requested property.
func (r Report) OK() bool { return len(r.Findings) == 0 }

// Audit checks a generated history against the properties requested in the
// transaction prompt. Nothing is rejected; the caller decides what to do
// with the findings.
func Audit(records []map[string]any, p Persona, months int) Report {
	rep := Report{Count: len(records), Income: decimal.Zero, Spend: decimal.Zero}

	if rep.Count < MinHistoryVolume || rep.Count > MaxHistoryVolume {
		rep.add(CheckVolume, "%d transactions, want %d-%d", rep.Count, MinHistoryVolume, MaxHistoryVolume)
	}

	txns := make([]Transaction, 0, len(records))
	var schemaBad, signBad int
	var firstProblem string
	for _, rec := range records {
		tx, problems := TransactionFromMap(rec)
		if len(problems) > 0 {
			schemaBad++
			if firstProblem == "" {
				firstProblem = problems[0]
			}
		}
		if !tx.SignAgrees() {
			signBad++
		}
		if tx.Amount.Sign() > 0 && tx.IsIncome {
			rep.Income = rep.Income.Add(tx.Amount)
		}
		if tx.Amount.Sign() < 0 {
			rep.Spend = rep.Spend.Add(tx.Amount.Abs())
		}
		txns = append(txns, tx)
	}
	if schemaBad > 0 {
		rep.add(CheckSchema, "%d records with problems (first: %s)", schemaBad, firstProblem)
	}
	if signBad > 0 {
		rep.add(CheckSign, "%d records where amount sign disagrees with direction/is_income", signBad)
	}

	if avg := p.Income.AverageMonthly; avg != nil && *avg > 0 && months > 0 {
		expected := decimal.NewFromFloat(*avg).Mul(decimal.NewFromInt(int64(months)))
		deviation := rep.Income.Sub(expected).Abs().Div(expected)
		if deviation.GreaterThan(decimal.NewFromFloat(incomeTolerance)) {
			rep.add(CheckIncomeTotal, "income %s vs expected %s (±%.0f%%)",
				rep.Income.StringFixed(2), expected.StringFixed(2), incomeTolerance*100)
		}
	}

	if rep.Income.Sign() > 0 {
		share := rep.Spend.Div(rep.Income)
		if share.LessThan(decimal.NewFromFloat(minSpendShare)) || share.GreaterThan(decimal.NewFromFloat(maxSpendShare)) {
			rep.add(CheckSpendShare, "spend is %s%% of income, want %.0f-%.0f%%",
				share.Mul(decimal.NewFromInt(100)).StringFixed(1), minSpendShare*100, maxSpendShare*100)
		}
	}

	if missing := missingFollowUps(txns); missing > 0 {
		rep.add(CheckFollowUp, "%d suspicious inflows with fewer than %d outflows within 5 days", missing, minFollowUps)
	}

	return rep
}

func (r *Report) add(check, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{Check: check, Detail: fmt.Sprintf(format, args...)})
}

func missingFollowUps(txns []Transaction) int {
	sorted := make([]Transaction, 0, len(txns))
	for _, tx := range txns {
		if !tx.Timestamp.IsZero() {
			sorted = append(sorted, tx)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	missing := 0
	for i, tx := range sorted {
		if !tx.RiskFlag.Suspicious() || tx.Amount.Sign() <= 0 {
			continue
		}
		deadline := tx.Timestamp.Add(followUpWindow)
		outflows := 0
		for _, next := range sorted[i+1:] {
			if next.Timestamp.After(deadline) {
				break
			}
			if next.Amount.Sign() < 0 {
				outflows++
			}
		}
		if outflows < minFollowUps {
			missing++
		}
	}
	return missing
}
