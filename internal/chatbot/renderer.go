package chatbot

import (
	"fmt"
	"io"
	"sync"

	"DocChat/internal/conversation"

	"github.com/fatih/color"
)

// Renderer prints conversation turns and status lines to the terminal.
// It is safe for concurrent use; logout notices arrive from task goroutines.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer

	user      *color.Color
	assistant *color.Color
	system    *color.Color
	failure   *color.Color
	dim       *color.Color
}

// NewRenderer creates a renderer writing to out
func NewRenderer(out io.Writer, noColor bool) *Renderer {
	r := &Renderer{
		out:       out,
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgGreen, color.Bold),
		system:    color.New(color.FgYellow),
		failure:   color.New(color.FgRed),
		dim:       color.New(color.FgHiBlack),
	}
	if noColor {
		for _, c := range []*color.Color{r.user, r.assistant, r.system, r.failure, r.dim} {
			c.DisableColor()
		}
	}
	return r
}

func (r *Renderer) Banner(apiURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "=== PDF Chat ===")
	fmt.Fprintln(r.out, r.dim.Sprintf("API: %s", apiURL))
	fmt.Fprintln(r.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(r.out)
}

func (r *Renderer) Prompt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, r.user.Sprint("You: "))
}

// Turn prints a single conversation turn, with its sources under answers
func (r *Renderer) Turn(t conversation.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch t.Role {
	case conversation.RoleUser:
		fmt.Fprintf(r.out, "%s %s\n", r.user.Sprint("You:"), t.Text)
	case conversation.RoleAssistant:
		fmt.Fprintf(r.out, "%s %s\n", r.assistant.Sprint("Bot:"), t.Text)
		if len(t.Evidence) > 0 {
			fmt.Fprintln(r.out, r.dim.Sprint("Sources:"))
			for i, src := range t.Evidence {
				fmt.Fprintln(r.out, r.dim.Sprintf("  %d. %s", i+1, src))
			}
		}
	case conversation.RoleError:
		fmt.Fprintln(r.out, r.failure.Sprint(t.Text))
	default:
		fmt.Fprintln(r.out, r.system.Sprint(t.Text))
	}
	fmt.Fprintln(r.out)
}

func (r *Renderer) Thinking() {
	r.Info("Thinking...")
}

func (r *Renderer) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.dim.Sprint(msg))
}

func (r *Renderer) Notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.system.Sprint(msg))
}

func (r *Renderer) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.failure.Sprintf("Error: %s", msg))
}

// Lines prints plain text lines, used for help and status output
func (r *Renderer) Lines(lines ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range lines {
		fmt.Fprintln(r.out, l)
	}
}
