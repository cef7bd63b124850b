// Package prompt renders the generation requests for both stages from
// embedded templates.
package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/synthbank/bankgen/internal/model"
	"github.com/synthbank/bankgen/pkg/llm"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed templates/personas_examples.json
var personaExamples string

var templates = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"join": func(vals any) string {
		var parts []string
		switch v := vals.(type) {
		case []model.RiskFlag:
			for _, f := range v {
				parts = append(parts, fmt.Sprintf("%q", f))
			}
		case []model.SourceType:
			for _, s := range v {
				parts = append(parts, fmt.Sprintf("%q", s))
			}
		}
		return strings.Join(parts, ", ")
	},
}).ParseFS(templateFS, "templates/*.tmpl"))

// PersonaField describes one requested persona field.
type PersonaField struct {
	Name string
	Type string
	Hint string
}

// PersonaFields is the field list every persona must carry.
var PersonaFields = []PersonaField{
	{"full_name", "string", ""},
	{"age", "integer", ""},
	{"gender", "string", ""},
	{"location", "string (UK city or town)", ""},
	{"ethnicity", "string", `e.g. "White British", "British Pakistani"`},
	{"occupations", "list of strings", `e.g. ["Uber Driver", "Private Tutor", "Etsy Seller"]`},
	{"persona_summary", "string", "Detailed narrative of job mix, income types, payment irregularities, notable events and the last 6 months. Include numbers, employer/agency names, government support and anything suspicious."},
	{"income_streams", "object", "{formal_sources: [string], informal_sources: [string], government_support: [string], employers_last_6_months: [string], payment_frequency: string, average_monthly_income_in_gbp: float, monthly_income_variance_in_percent: float, monthly_income_standard_deviation_in_gbp: float, income_events_last_6_months: [{date, amount, type: BACS|FPS|CHQ|CASH, source}]}"},
	{"expense_behavior", "object", "{spend_categories: [string], regular_obligations: [string], financial_stress_signals: [string]}"},
	{"notable_events", "list of strings", `e.g. "£500 grant from DWP", "February DD bounce", "One-off £10k transfer from friend"`},
	{"income_estimation_challenges", "list of strings", "mixed employer names, one-off spikes, P2P disguised as payroll, family transfers mimicking income, Wise/PayPal/Stripe payouts hiding the source"},
}

// Personas builds the request messages asking for exactly n personas.
func Personas(n int) ([]llm.Message, error) {
	if n <= 0 {
		return nil, eris.Errorf("prompt: persona count must be positive, got %d", n)
	}

	system, err := render("personas_system", struct {
		Fields   []PersonaField
		Examples string
	}{PersonaFields, strings.TrimSpace(personaExamples)})
	if err != nil {
		return nil, err
	}
	user, err := render("personas_user", struct{ N int }{n})
	if err != nil {
		return nil, err
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

// Transactions builds the request messages asking for a months-long history
// for persona. The full persona record is embedded as indented JSON in the
// user turn; the schema and rules form a system turn shared by every persona.
func Transactions(persona map[string]any, months int) ([]llm.Message, error) {
	if months <= 0 {
		return nil, eris.Errorf("prompt: months must be positive, got %d", months)
	}

	body, err := json.MarshalIndent(persona, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "prompt: marshal persona")
	}

	system, err := render("transactions_system", struct {
		RiskFlags   []model.RiskFlag
		SourceTypes []model.SourceType
		MinVolume   int
		MaxVolume   int
	}{model.RiskFlags, model.SourceTypes, model.MinHistoryVolume, model.MaxHistoryVolume})
	if err != nil {
		return nil, err
	}
	user, err := render("transactions_user", struct {
		Months  int
		Persona string
	}{months, string(body)})
	if err != nil {
		return nil, err
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", eris.Wrapf(err, "prompt: render %s", name)
	}
	return strings.TrimSpace(buf.String()), nil
}
