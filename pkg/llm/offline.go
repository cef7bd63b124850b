package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rotisserie/eris"
)

// Offline is a Backend that fabricates plausible records locally with
// gofakeit. It reads the request Metadata to decide what to produce and is
// deterministic for a given seed and request.
type Offline struct {
	seed uint64
	now  func() time.Time
}

// NewOffline returns an offline backend seeded with seed.
func NewOffline(seed uint64) *Offline {
	return &Offline{seed: seed, now: time.Now}
}

func (o *Offline) Name() string { return ProviderOffline }

func (o *Offline) Complete(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := gofakeit.New(o.seed ^ requestHash(req))

	var records []map[string]any
	switch req.Metadata[MetaStage] {
	case "personas":
		n := metaInt(req.Metadata, MetaCount, 1)
		for i := 0; i < n; i++ {
			records = append(records, fakePersona(f))
		}
	case "transactions":
		months := metaInt(req.Metadata, MetaMonths, 6)
		income := metaFloat(req.Metadata, MetaMonthlyIncome, 0)
		if income <= 0 {
			income = round2(f.Float64Range(900, 3500))
		}
		records = fakeHistory(f, o.now(), months, income)
	default:
		return nil, eris.Errorf("offline: unknown stage %q", req.Metadata[MetaStage])
	}

	body, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "offline: marshal records")
	}
	text := "```json\n" + string(body) + "\n```"

	var prompt int
	for _, m := range req.Messages {
		prompt += len(m.Content)
	}
	return &Result{
		Text:  text,
		Model: req.Model,
		Usage: Usage{InputTokens: int64(prompt / 4), OutputTokens: int64(len(text) / 4)},
	}, nil
}

func requestHash(req Request) uint64 {
	h := fnv.New64a()
	keys := make([]string, 0, len(req.Metadata))
	for k := range req.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, req.Metadata[k])
	}
	for _, m := range req.Messages {
		fmt.Fprintf(h, "%s:%s;", m.Role, m.Content)
	}
	return h.Sum64()
}

func metaInt(md map[string]string, key string, def int) int {
	if v, err := strconv.Atoi(md[key]); err == nil && v > 0 {
		return v
	}
	return def
}

func metaFloat(md map[string]string, key string, def float64) float64 {
	if v, err := strconv.ParseFloat(md[key], 64); err == nil {
		return v
	}
	return def
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

var (
	ukCities = []string{
		"London", "Birmingham", "Manchester", "Leeds", "Glasgow", "Bristol",
		"Liverpool", "Sheffield", "Cardiff", "Leicester", "Nottingham", "Belfast",
	}
	ethnicities = []string{
		"White British", "British Indian", "British Pakistani", "Black British Caribbean",
		"Black British African", "Polish", "Romanian", "Mixed White and Asian", "Chinese",
	}
	gigWork = []string{
		"Delivery rider", "Rideshare driver", "Warehouse temp", "Care assistant",
		"Freelance designer", "Private tutor", "Market stall trader", "Cleaner",
		"Bar staff", "Online reseller",
	}
	platforms = []string{"Deliveroo", "Uber", "Just Eat", "Upwork", "Fiverr", "Vinted", "eBay", "Etsy"}
	benefits  = []string{"Universal Credit", "Child Benefit", "Housing Benefit", "Carer's Allowance"}
	merchants = []struct {
		name, raw string
		source    string
	}{
		{"Tesco", "TESCO STORES", "pos"},
		{"Sainsbury's", "SAINSBURYS S/MKT", "pos"},
		{"Aldi", "ALDI", "pos"},
		{"Greggs", "GREGGS", "pos"},
		{"TfL", "TFL TRAVEL CH", "pos"},
		{"Shell", "SHELL", "pos"},
		{"Amazon", "AMZNMKTPLACE", "pos"},
		{"EE", "EE LIMITED", "dd"},
		{"Octopus Energy", "OCTOPUS ENERGY", "dd"},
		{"Council Tax", "COUNCIL TAX", "dd"},
		{"Netflix", "NETFLIX.COM", "dd"},
		{"Cash", "CASH WITHDRAWAL", "atm"},
	}
)

func fakePersona(f *gofakeit.Faker) map[string]any {
	jobs := []string{f.RandomString(gigWork)}
	if f.Bool() {
		jobs = append(jobs, f.RandomString(gigWork))
	}
	income := round2(f.Float64Range(900, 3500))
	variance := round2(f.Float64Range(10, 45))
	city := f.RandomString(ukCities)

	events := make([]map[string]any, 0, 6)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		events = append(events, map[string]any{
			"date":   start.AddDate(0, i, f.Number(0, 27)).Format("2006-01-02"),
			"amount": round2(income * f.Float64Range(0.3, 0.7)),
			"type":   f.RandomString([]string{"BACS", "FPS", "CHQ", "CASH"}),
			"source": f.RandomString(platforms),
		})
	}

	return map[string]any{
		"full_name":   f.Name(),
		"age":         f.Number(19, 67),
		"gender":      f.RandomString([]string{"Male", "Female", "Non-binary"}),
		"location":    city,
		"ethnicity":   f.RandomString(ethnicities),
		"occupations": jobs,
		"persona_summary": fmt.Sprintf("%s based in %s juggling %s with irregular weekly pay.",
			jobs[0], city, strings.ToLower(strings.Join(jobs, " and "))),
		"income_streams": map[string]any{
			"formal_sources":                           []string{f.Company()},
			"informal_sources":                         []string{f.RandomString(platforms)},
			"government_support":                       []string{f.RandomString(benefits)},
			"employers_last_6_months":                  []string{f.Company(), f.RandomString(platforms)},
			"payment_frequency":                        f.RandomString([]string{"weekly", "fortnightly", "monthly", "ad hoc"}),
			"average_monthly_income_in_gbp":            income,
			"monthly_income_variance_in_percent":       variance,
			"monthly_income_standard_deviation_in_gbp": round2(income * variance / 100),
			"income_events_last_6_months":              events,
		},
		"expense_behavior": map[string]any{
			"spend_categories":         []string{"groceries", "transport", "utilities", "takeaway"},
			"regular_obligations":      []string{"rent", "mobile phone", "council tax"},
			"financial_stress_signals": []string{f.RandomString([]string{"overdraft use", "late rent", "payday loan", "none"})},
		},
		"notable_events":               []string{f.RandomString([]string{"moved flat", "new baby", "car repair", "lost main gig"})},
		"income_estimation_challenges": []string{"cash tips unrecorded", "platform payouts vary week to week"},
	}
}

type fakeTx struct {
	at     time.Time
	record map[string]any
}

func fakeHistory(f *gofakeit.Faker, now time.Time, months int, income float64) []map[string]any {
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, -months, 0)

	var txs []fakeTx
	add := func(at time.Time, amount float64, raw, cleaned, merchant string, isIncome bool, flag, source string) {
		dir := "DEBIT"
		if amount > 0 {
			dir = "CREDIT"
		}
		var risk any
		if flag != "" {
			risk = flag
		}
		txs = append(txs, fakeTx{at: at, record: map[string]any{
			"timestamp":           at.Format(time.RFC3339),
			"amount":              round2(amount),
			"transaction_type":    dir,
			"currency":            "GBP",
			"description_raw":     raw,
			"description_cleaned": cleaned,
			"merchant_name":       merchant,
			"is_income":           isIncome,
			"risk_flag":           risk,
			"source_type":         source,
		}})
	}
	at := func(month time.Time, day int) time.Time {
		return month.AddDate(0, 0, day-1).Add(time.Duration(f.Number(7*60, 22*60)) * time.Minute)
	}

	for m := 0; m < months; m++ {
		month := start.AddDate(0, m, 0)

		monthIncome := income * f.Float64Range(0.97, 1.03)
		parts := f.Number(1, 3)
		for p := 0; p < parts; p++ {
			src := f.RandomString(platforms)
			source := "platform"
			if p == parts-1 && parts > 1 {
				src, source = f.RandomString(benefits), "govt"
			}
			add(at(month, f.Number(1, 28)), monthIncome/float64(parts),
				fmt.Sprintf("FPS CREDIT %s PAYOUT", strings.ToUpper(src)), src+" payout", src, true, "", source)
		}

		budget := monthIncome * f.Float64Range(0.74, 0.84)

		if f.Number(0, 2) == 0 {
			day := f.Number(1, 20)
			inflow := round2(f.Float64Range(150, 400))
			add(at(month, day), inflow, "CASH DEPOSIT BRANCH", "Cash deposit", "", false, "unexplained inflow", "cash_deposit")
			for k := 1; k <= 2; k++ {
				out := inflow * 0.45
				budget -= out
				name := f.FirstName()
				add(at(month, day+k), -out, "FPS PAYMENT TO "+strings.ToUpper(name), "Transfer to "+name, name, false, "", "p2p")
			}
		}

		n := f.Number(12, 16)
		weights := make([]float64, n)
		var total float64
		for i := range weights {
			weights[i] = f.Float64Range(0.5, 1.5)
			total += weights[i]
		}
		for i := 0; i < n; i++ {
			mc := merchants[f.Number(0, len(merchants)-1)]
			day := f.Number(1, 28)
			raw := fmt.Sprintf("CARD PAYMENT TO %s ON %02d-%02d", mc.raw, day, int(month.Month()))
			if mc.source == "dd" {
				raw = "DIRECT DEBIT " + mc.raw
			}
			add(at(month, day), -budget*weights[i]/total, raw, mc.name, mc.name, false, "", mc.source)
		}
	}

	sort.SliceStable(txs, func(i, j int) bool { return txs[i].at.Before(txs[j].at) })
	out := make([]map[string]any, len(txs))
	for i, tx := range txs {
		out[i] = tx.record
	}
	return out
}
