package pipeline

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rotisserie/eris"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/synthbank/bankgen/internal/cost"
)

// Confirmer is the cost confirmation gate shown before each stage.
type Confirmer interface {
	Confirm(ctx context.Context, est cost.Estimate) (bool, error)
}

// AutoConfirm approves every stage without asking.
type AutoConfirm struct{}

// Confirm always returns true.
func (AutoConfirm) Confirm(context.Context, cost.Estimate) (bool, error) { return true, nil }

var (
	colorWarning = lipgloss.AdaptiveColor{Light: "#CC6600", Dark: "#D29922"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#8B949E"}

	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(colorWarning)
	styleKey    = lipgloss.NewStyle().Foreground(colorMuted).Width(12)
	styleValue  = lipgloss.NewStyle().Bold(true)
	stylePrompt = lipgloss.NewStyle().Foreground(colorWarning)
)

// TerminalConfirmer asks on the terminal and accepts "y" or "yes". Styling
// is applied only when the output is a terminal.
type TerminalConfirmer struct {
	in     *bufio.Reader
	out    io.Writer
	styled bool
	p      *message.Printer
}

// NewTerminalConfirmer reads answers from in and writes the estimate to out.
func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == ""
	}
	return &TerminalConfirmer{
		in:     bufio.NewReader(in),
		out:    out,
		styled: styled,
		p:      message.NewPrinter(language.BritishEnglish),
	}
}

// Confirm prints est and waits for one line of input. Anything other than
// y/yes, including end of input, declines.
func (t *TerminalConfirmer) Confirm(ctx context.Context, est cost.Estimate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	t.write(t.render(est))

	line, err := t.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, eris.Wrap(err, "pipeline: read confirmation")
	}
	return Accepts(line), nil
}

// Accepts reports whether answer approves a stage.
func Accepts(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (t *TerminalConfirmer) render(est cost.Estimate) string {
	tokens := t.p.Sprintf("%d tokens (%d calls)", est.Tokens, est.Calls)
	price := t.p.Sprintf("$%.2f USD", est.CostUSD)
	model := est.Model
	if est.PricedAs != est.Model {
		model += " (priced as " + est.PricedAs + ")"
	}

	if !t.styled {
		var sb strings.Builder
		sb.WriteString("Estimated token usage for " + string(est.Stage) + ": " + tokens + "\n")
		sb.WriteString("Approximate cost: " + price + " using model=" + model + "\n")
		sb.WriteString("Proceed with generation? (y/yes to continue): ")
		return sb.String()
	}

	var sb strings.Builder
	sb.WriteString(styleTitle.Render("Cost estimate: "+string(est.Stage)) + "\n")
	sb.WriteString("  " + styleKey.Render("tokens") + " " + styleValue.Render(tokens) + "\n")
	sb.WriteString("  " + styleKey.Render("cost") + " " + styleValue.Render(price) + "\n")
	sb.WriteString("  " + styleKey.Render("model") + " " + styleValue.Render(model) + "\n")
	sb.WriteString(stylePrompt.Render("! Proceed with generation? (y/yes to continue): "))
	return sb.String()
}

func (t *TerminalConfirmer) write(s string) {
	_, _ = io.WriteString(t.out, s)
}
