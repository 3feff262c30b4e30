// Package ui renders chat replies, gateway errors and supervisor progress
// for the terminal.
package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/run-bigpig/guardchat/pkg/gateway"
)

// Semantic colors
var (
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#00BCD4")
)

// Styles holds the lipgloss styles used by the printer
type Styles struct {
	Assistant lipgloss.Style
	Alert     lipgloss.Style
	Detail    lipgloss.Style
	Hint      lipgloss.Style
	Success   lipgloss.Style
	Failure   lipgloss.Style
	Muted     lipgloss.Style
}

// NewStyles creates the styles bound to renderer
func NewStyles(renderer *lipgloss.Renderer) Styles {
	return Styles{
		Assistant: renderer.NewStyle().
			Foreground(Success).
			Bold(true),

		Alert: renderer.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Detail: renderer.NewStyle().
			Foreground(Warning),

		Hint: renderer.NewStyle().
			Foreground(Info),

		Success: renderer.NewStyle().
			Foreground(Success),

		Failure: renderer.NewStyle().
			Foreground(Destructive),

		Muted: renderer.NewStyle().
			Faint(true),
	}
}

// Printer writes styled output. Colors are dropped automatically when out
// is not a terminal.
type Printer struct {
	out      io.Writer
	styles   Styles
	markdown bool
	width    int

	once     sync.Once
	renderer *glamour.TermRenderer
}

// Option represents an option for configuring the printer
type Option func(*Printer)

// WithMarkdown renders assistant replies as markdown
func WithMarkdown(enabled bool) Option {
	return func(p *Printer) {
		p.markdown = enabled
	}
}

// WithWordWrap sets the markdown wrap width
func WithWordWrap(width int) Option {
	return func(p *Printer) {
		p.width = width
	}
}

// NewPrinter creates a printer writing to out
func NewPrinter(out io.Writer, options ...Option) *Printer {
	p := &Printer{
		out:    out,
		styles: NewStyles(lipgloss.NewRenderer(out)),
		width:  80,
	}

	for _, option := range options {
		option(p)
	}

	return p
}

// Println writes a plain line
func (p *Printer) Println(line string) {
	fmt.Fprintln(p.out, line)
}

// Banner prints the interactive session header
func (p *Printer) Banner() {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(p.out, "\n%s\n%s\n%s\n", rule, p.styles.Assistant.Render("LiteLLM Chat with Lakera Security"), rule)
	fmt.Fprintln(p.out, p.styles.Muted.Render("Type your messages (or 'quit'/'exit' to end, 'reset' to clear history)"))
	fmt.Fprintln(p.out)
}

// Response prints an assistant reply
func (p *Printer) Response(text string) {
	fmt.Fprintf(p.out, "\n%s\n", p.styles.Assistant.Render("Assistant:"))
	fmt.Fprintf(p.out, "%s\n\n", p.renderMarkdown(text))
}

func (p *Printer) renderMarkdown(text string) string {
	if !p.markdown {
		return text
	}

	p.once.Do(func() {
		p.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(p.width),
		)
	})
	if p.renderer == nil {
		return text
	}

	rendered, err := p.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

// Error prints err according to its kind
func (p *Printer) Error(err error) {
	if violation, ok := gateway.AsGuardrailViolation(err); ok {
		p.violation(violation)
		return
	}

	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(p.out, "\n%s\n", p.styles.Alert.Render("✗ API Error:"))
		fmt.Fprintf(p.out, "%s\n\n", renderLines(p.styles.Detail, apiErr.Error()))
		return
	}

	fmt.Fprintf(p.out, "\n%s\n", p.styles.Alert.Render("✗ Error:"))
	fmt.Fprintf(p.out, "%s\n\n", renderLines(p.styles.Detail, err.Error()))
}

// renderLines styles each line separately so lipgloss does not pad them
// to a common width
func renderLines(style lipgloss.Style, text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = style.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func (p *Printer) violation(err *gateway.GuardrailViolationError) {
	fmt.Fprintf(p.out, "\n%s\n", p.styles.Alert.Render("⚠ Content Safety Policy Violation:"))

	for _, line := range strings.Split(err.Error(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "Please revise") {
			fmt.Fprintln(p.out, p.styles.Hint.Render(line))
			continue
		}
		fmt.Fprintln(p.out, p.styles.Detail.Render(line))
	}
	fmt.Fprintln(p.out)
}

// Progress prints a supervisor status line, coloring ✓ and ✗ lines
func (p *Printer) Progress(message string) {
	trimmed := strings.TrimLeft(message, "\n ")
	switch {
	case strings.HasPrefix(trimmed, "✓"):
		fmt.Fprintln(p.out, renderLines(p.styles.Success, message))
	case strings.HasPrefix(trimmed, "✗"), strings.HasPrefix(trimmed, "Error:"):
		fmt.Fprintln(p.out, renderLines(p.styles.Failure, message))
	default:
		fmt.Fprintln(p.out, message)
	}
}

// MissingEnv prints the missing environment variable report
func (p *Printer) MissingEnv(names []string) {
	fmt.Fprintln(p.out, p.styles.Failure.Render("Error: Missing required environment variables:"))
	for _, name := range names {
		fmt.Fprintf(p.out, "  - %s\n", name)
	}
	fmt.Fprintln(p.out, "\nPlease set these in your .env file or environment.")
	fmt.Fprintln(p.out, "See .env.example for reference.")
}
