package model

// Persona column keys as requested from the generator.
const (
	KeyUserID = "user_id"
)

// PersonaColumns is the preferred leading column order of personas.csv.
var PersonaColumns = []string{
	KeyUserID,
	"full_name",
	"age",
	"gender",
	"location",
	"ethnicity",
	"occupations",
	"persona_summary",
	"income_streams",
	"expense_behavior",
	"notable_events",
	"income_estimation_challenges",
}

// Persona is a typed, best-effort view over one generated persona record.
// The raw map stays the source of truth: anything the generator omitted is
// left at its zero value and extra keys are ignored here.
type Persona struct {
	UserID               string
	FullName             string
	Age                  int
	Gender               string
	Location             string
	Ethnicity            string
	Occupations          []string
	Summary              string
	Income               IncomeStreams
	Expenses             ExpenseBehavior
	NotableEvents        []string
	EstimationChallenges []string
}

// IncomeStreams describes where a persona's money comes from.
type IncomeStreams struct {
	FormalSources     []string
	InformalSources   []string
	GovernmentSupport []string
	Employers         []string
	PaymentFrequency  string
	// Nil when the generator did not state a figure.
	AverageMonthly *float64
	VariancePct    *float64
	StdDev         *float64
	Events         []IncomeEvent
}

// IncomeEvent is one discrete payment listed in the persona profile.
type IncomeEvent struct {
	Date   string
	Amount float64
	Type   string // BACS, FPS, CHQ, CASH
	Source string
}

// ExpenseBehavior summarises spending habits.
type ExpenseBehavior struct {
	SpendCategories     []string
	RegularObligations  []string
	FinancialStressSigs []string
}

// PersonaFromMap maps a raw persona record into a Persona without failing on
// missing or mistyped keys.
func PersonaFromMap(m map[string]any) Persona {
	p := Persona{
		UserID:               str(m, KeyUserID),
		FullName:             str(m, "full_name", "name"),
		Gender:               str(m, "gender"),
		Location:             str(m, "location"),
		Ethnicity:            str(m, "ethnicity"),
		Occupations:          strs(m, "occupations"),
		Summary:              str(m, "persona_summary", "persona_description"),
		NotableEvents:        strs(m, "notable_events"),
		EstimationChallenges: strs(m, "income_estimation_challenges"),
	}
	if age, ok := num(m, "age"); ok {
		p.Age = int(age)
	}

	if inc := obj(m, "income_streams"); inc != nil {
		p.Income = IncomeStreams{
			FormalSources:     strs(inc, "formal_sources"),
			InformalSources:   strs(inc, "informal_sources"),
			GovernmentSupport: strs(inc, "government_support"),
			Employers:         strs(inc, "employers_last_6_months", "employers"),
			PaymentFrequency:  str(inc, "payment_frequency"),
			AverageMonthly:    optional(num(inc, "average_monthly_income_in_gbp", "average_monthly_income_gbp", "average_monthly_income")),
			VariancePct:       optional(num(inc, "monthly_income_variance_in_percent", "monthly_income_variance_pct")),
			StdDev:            optional(num(inc, "monthly_income_standard_deviation_in_gbp", "monthly_income_std_dev_gbp")),
		}
		for _, ev := range list(inc, "income_events_last_6_months", "income_events") {
			amount, _ := num(ev, "amount")
			p.Income.Events = append(p.Income.Events, IncomeEvent{
				Date:   str(ev, "date"),
				Amount: amount,
				Type:   str(ev, "type"),
				Source: str(ev, "source"),
			})
		}
	}

	if exp := obj(m, "expense_behavior"); exp != nil {
		p.Expenses = ExpenseBehavior{
			SpendCategories:     strs(exp, "spend_categories"),
			RegularObligations:  strs(exp, "regular_obligations"),
			FinancialStressSigs: strs(exp, "financial_stress_signals"),
		}
	}

	return p
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
