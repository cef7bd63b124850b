// Package cost projects and prices generation token usage.
package cost

// ModelRate holds per-model token pricing in USD per 1K tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model id to pricing.
type Rates map[string]ModelRate

// DefaultModel is priced when the configured model is not in the table.
const DefaultModel = "claude-sonnet-4-5-20250929"

// DefaultRates returns the built-in pricing table.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 0.0008, Output: 0.004},
		"claude-sonnet-4-5-20250929": {Input: 0.003, Output: 0.015},
		"claude-opus-4-6":            {Input: 0.015, Output: 0.075},
		"gemini-2.5-flash":           {Input: 0.0003, Output: 0.0025},
		"gemini-2.5-pro":             {Input: 0.00125, Output: 0.01},
		"gpt-4":                      {Input: 0.03, Output: 0.03},
		"gpt-4o":                     {Input: 0.0025, Output: 0.01},
		"gpt-3.5-turbo":              {Input: 0.0005, Output: 0.0015},
		"gpt-5":                      {Input: 0.00125, Output: 0.01},
		"offline":                    {},
	}
}

// Calculator prices token usage against a rate table.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator. A nil table uses DefaultRates.
func NewCalculator(rates Rates) *Calculator {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Calculator{rates: rates}
}

// Rate returns the pricing for model, falling back to DefaultModel. The
// second value is the model id whose price was used.
func (c *Calculator) Rate(model string) (ModelRate, string) {
	if r, ok := c.rates[model]; ok {
		return r, model
	}
	return c.rates[DefaultModel], DefaultModel
}

// Actual computes the cost of real usage reported by the backend.
func (c *Calculator) Actual(model string, inputTokens, outputTokens int64) float64 {
	rate, _ := c.Rate(model)
	return float64(inputTokens)/1000*rate.Input + float64(outputTokens)/1000*rate.Output
}
