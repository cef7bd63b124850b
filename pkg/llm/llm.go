// Package llm is the generation client adapter: one Client in front of a
// pluggable Backend, adding defaults, retries, pacing, caching and metrics.
package llm

import (
	"context"
	"errors"
)

// Role is the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Provider names accepted by NewBackend.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOffline   = "offline"
)

// Metadata keys describing what a request asks for. Remote backends ignore
// them; the offline backend uses them to shape its output.
const (
	MetaStage         = "stage"
	MetaCount         = "count"
	MetaBatchStart    = "batch_start"
	MetaMonths        = "months"
	MetaUserID        = "user_id"
	MetaMonthlyIncome = "monthly_income"
)

// ErrUnknownProvider is returned for a provider name NewBackend does not know.
var ErrUnknownProvider = errors.New("unknown provider")

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single generation call. Zero-valued Model, Temperature and
// MaxTokens are filled from the Client defaults.
type Request struct {
	Messages    []Message         `json:"messages"`
	Model       string            `json:"model"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   int64             `json:"max_tokens"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Usage is token consumption reported by a backend.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Result is the text a backend produced.
type Result struct {
	Text   string `json:"text"`
	Model  string `json:"model"`
	Usage  Usage  `json:"usage"`
	Cached bool   `json:"-"`
}

// Outcome pairs a Result with its error for ChatAll.
type Outcome struct {
	Result *Result
	Err    error
}

// Backend performs one generation call with no retries of its own.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Result, error)
}

// Float returns a pointer to v, for Request.Temperature.
func Float(v float64) *float64 { return &v }

func splitSystem(msgs []Message) (system []string, rest []Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
