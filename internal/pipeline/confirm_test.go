package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthbank/bankgen/internal/cost"
	"github.com/synthbank/bankgen/internal/model"
)

func TestAccepts(t *testing.T) {
	for _, yes := range []string{"y", "Y", "yes", " YES \n", "Yes\r\n"} {
		assert.True(t, Accepts(yes), "%q", yes)
	}
	for _, no := range []string{"", "n", "no", "yep", "sure", "y e s"} {
		assert.False(t, Accepts(no), "%q", no)
	}
}

func TestTerminalConfirmer(t *testing.T) {
	est := cost.Estimate{
		Stage:    model.StagePersonas,
		Calls:    10,
		Tokens:   20000,
		CostUSD:  0.3,
		Model:    "claude-sonnet-4-5-20250929",
		PricedAs: "claude-sonnet-4-5-20250929",
	}

	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"y", true},
		{"n\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var out bytes.Buffer
			c := NewTerminalConfirmer(strings.NewReader(tt.input), &out)

			ok, err := c.Confirm(context.Background(), est)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)

			assert.Contains(t, out.String(), "Estimated token usage for personas: 20,000 tokens (10 calls)")
			assert.Contains(t, out.String(), "Approximate cost: $0.30 USD using model=claude-sonnet-4-5-20250929")
			assert.Contains(t, out.String(), "(y/yes to continue)")
		})
	}
}

func TestTerminalConfirmer_FallbackPricing(t *testing.T) {
	var out bytes.Buffer
	c := NewTerminalConfirmer(strings.NewReader("n\n"), &out)

	_, err := c.Confirm(context.Background(), cost.Estimate{
		Stage: model.StageTransactions, Model: "gpt-9", PricedAs: "claude-sonnet-4-5-20250929",
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "model=gpt-9 (priced as claude-sonnet-4-5-20250929)")
}

func TestTerminalConfirmer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := NewTerminalConfirmer(strings.NewReader("yes\n"), &bytes.Buffer{}).Confirm(ctx, cost.Estimate{})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}
