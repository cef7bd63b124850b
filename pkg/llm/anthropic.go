package llm

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/synthbank/bankgen/internal/resilience"
)

// Anthropic is a Backend on the Messages API.
type Anthropic struct {
	client sdk.Client
}

// NewAnthropic creates an Anthropic backend. SDK-level retries are disabled
// so the Client's retry policy is the only one in play.
func NewAnthropic(apiKey string, opts ...option.RequestOption) *Anthropic {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &Anthropic{client: sdk.NewClient(append(base, opts...)...)}
}

func (a *Anthropic) Name() string { return ProviderAnthropic }

func (a *Anthropic) Complete(ctx context.Context, req Request) (*Result, error) {
	system, msgs := splitSystem(req.Messages)

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(msgs),
	}
	if len(system) > 0 {
		// The system turn carries each stage's fixed instructions, so it is
		// marked as a prompt-cache breakpoint.
		params.System = []sdk.TextBlockParam{{
			Text:         strings.Join(system, "\n\n"),
			CacheControl: sdk.NewCacheControlEphemeralParam(),
		}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		wrapped := eris.Wrap(err, "anthropic: create message")
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return nil, resilience.ClassifyStatus(wrapped, apiErr.StatusCode)
		}
		return nil, wrapped
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}

	return &Result{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case RoleAssistant:
			out[i] = sdk.NewAssistantMessage(block)
		default:
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}
