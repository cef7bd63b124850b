package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	s, err := ParseStage("personas")
	require.NoError(t, err)
	assert.Equal(t, StagePersonas, s)

	s, err = ParseStage(" Transactions ")
	require.NoError(t, err)
	assert.Equal(t, StageTransactions, s)

	_, err = ParseStage("accounts")
	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestPersonaFromMap(t *testing.T) {
	raw := map[string]any{
		"user_id":     "user_00003",
		"full_name":   "Tariq Mahmood",
		"age":         int64(38),
		"gender":      "Male",
		"location":    "Leeds",
		"occupations": []any{"Care Assistant", "Private Tutor"},
		"income_streams": map[string]any{
			"formal_sources":             []any{"NHS Trust - Leeds"},
			"payment_frequency":          "Weekly BACS/FPS",
			"average_monthly_income_gbp": 3250.0,
			"income_events_last_6_months": []any{
				map[string]any{"date": "2025-01-15", "amount": 490.73, "type": "FPS", "source": "Hays Recruitment"},
				"garbage",
			},
		},
		"expense_behavior": `{"spend_categories":["Fuel"],"regular_obligations":["EE Mobile"]}`,
		"unexpected":       true,
	}

	p := PersonaFromMap(raw)
	assert.Equal(t, "user_00003", p.UserID)
	assert.Equal(t, 38, p.Age)
	assert.Equal(t, []string{"Care Assistant", "Private Tutor"}, p.Occupations)
	require.NotNil(t, p.Income.AverageMonthly)
	assert.InDelta(t, 3250.0, *p.Income.AverageMonthly, 0.001)
	assert.Nil(t, p.Income.VariancePct)
	require.Len(t, p.Income.Events, 1)
	assert.Equal(t, "FPS", p.Income.Events[0].Type)
	assert.Equal(t, []string{"Fuel"}, p.Expenses.SpendCategories)
}

func TestPersonaFromMap_Empty(t *testing.T) {
	p := PersonaFromMap(map[string]any{})
	assert.Empty(t, p.UserID)
	assert.Nil(t, p.Income.AverageMonthly)
}

func TestTransactionFromMap(t *testing.T) {
	tx, problems := TransactionFromMap(map[string]any{
		"timestamp":        "2025-03-11T14:32:00+00:00",
		"amount":           -12.5,
		"transaction_type": "debit",
		"currency":         "gbp",
		"description_raw":  "POSGREGGS1023LDN",
		"is_income":        false,
		"risk_flag":        nil,
		"source_type":      "pos",
	})
	assert.Empty(t, problems)
	assert.Equal(t, Debit, tx.Direction)
	assert.Equal(t, "GBP", tx.Currency)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("-12.5")))
	assert.Equal(t, RiskNone, tx.RiskFlag)
	assert.True(t, tx.SignAgrees())
}

func TestTransactionFromMap_Problems(t *testing.T) {
	tx, problems := TransactionFromMap(map[string]any{
		"timestamp":        "2025-03-11T14:32:00",
		"amount":           "£1,200.00",
		"transaction_type": "CREDIT",
		"currency":         "GBP",
		"is_income":        "yes",
		"risk_flag":        "money_mule",
		"source_type":      "crypto",
	})
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(1200)))
	assert.True(t, tx.IsIncome)
	assert.Len(t, problems, 3)
}

func TestSignAgrees(t *testing.T) {
	cases := []struct {
		tx   Transaction
		want bool
	}{
		{Transaction{Direction: Credit, Amount: decimal.NewFromInt(10), IsIncome: true}, true},
		{Transaction{Direction: Credit, Amount: decimal.NewFromInt(-10)}, false},
		{Transaction{Direction: Debit, Amount: decimal.NewFromInt(10)}, false},
		{Transaction{Direction: Debit, Amount: decimal.NewFromInt(-10), IsIncome: true}, false},
		{Transaction{Direction: Debit, Amount: decimal.NewFromInt(-10)}, true},
	}
	for i, c := range cases {
		assert.Equal(t, c.want, c.tx.SignAgrees(), "case %d", i)
	}
}

func history(n int, income, spend float64) []map[string]any {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	out := make([]map[string]any, 0, n)
	credits := n / 4
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * 24 * time.Hour).Format(time.RFC3339)
		if i < credits {
			out = append(out, map[string]any{
				"timestamp": ts, "amount": income / float64(credits), "transaction_type": "CREDIT",
				"currency": "GBP", "is_income": true, "source_type": "agency",
			})
			continue
		}
		out = append(out, map[string]any{
			"timestamp": ts, "amount": -spend / float64(n-credits), "transaction_type": "DEBIT",
			"currency": "GBP", "is_income": false, "source_type": "pos",
		})
	}
	return out
}

func TestAudit_Clean(t *testing.T) {
	avg := 1000.0
	p := Persona{Income: IncomeStreams{AverageMonthly: &avg}}
	rep := Audit(history(80, 3000, 2400), p, 3)
	assert.True(t, rep.OK(), "%v", rep.Findings)
	assert.Equal(t, 80, rep.Count)
}

func checks(rep Report) []string {
	var out []string
	for _, f := range rep.Findings {
		out = append(out, f.Check)
	}
	return out
}

func TestAudit_Findings(t *testing.T) {
	avg := 1000.0
	p := Persona{Income: IncomeStreams{AverageMonthly: &avg}}

	rep := Audit(history(20, 6000, 1000), p, 3)
	assert.ElementsMatch(t, []string{CheckVolume, CheckIncomeTotal, CheckSpendShare}, checks(rep))
}

func TestAudit_FollowUps(t *testing.T) {
	recs := history(80, 3000, 2400)
	recs[40] = map[string]any{
		"timestamp": recs[40]["timestamp"], "amount": 7000.0, "transaction_type": "CREDIT",
		"currency": "GBP", "is_income": false, "risk_flag": "fraud_like", "source_type": "fraud_like",
	}
	// Move the following outflows beyond the follow-up window.
	for i := 41; i < 47; i++ {
		recs[i]["timestamp"] = time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC).Format(time.RFC3339)
	}
	rep := Audit(recs, Persona{}, 3)
	assert.Contains(t, checks(rep), CheckFollowUp)

	// With outflows inside the window the check passes.
	recs = history(80, 3000, 2400)
	recs[40]["risk_flag"] = "unexplained inflow"
	recs[40]["amount"] = 5000.0
	recs[40]["transaction_type"] = "CREDIT"
	recs[40]["is_income"] = false
	rep = Audit(recs, Persona{}, 3)
	assert.NotContains(t, checks(rep), CheckFollowUp, fmt.Sprint(rep.Findings))
}
