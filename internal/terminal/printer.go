// Package terminal renders session views as a scrolling chat transcript.
package terminal

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/village-chat/internal/core"
)

// Printer appends new rows of successive views to w. Views are full snapshots,
// so the printer remembers how much it has already shown.
type Printer struct {
	w    io.Writer
	self string

	sender  lipgloss.Style
	mine    lipgloss.Style
	body    lipgloss.Style
	status  lipgloss.Style
	failure lipgloss.Style

	room    string
	state   core.State
	printed int
	failed  map[int]bool
}

// NewPrinter creates a printer for the user self. Colors are used only when w is a terminal.
func NewPrinter(w io.Writer, self string) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		self:    self,
		sender:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3")),
		mine:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A")),
		body:    r.NewStyle().PaddingLeft(2),
		status:  r.NewStyle().Faint(true),
		failure: r.NewStyle().Foreground(lipgloss.Color("#e53935")),
		failed:  make(map[int]bool),
	}
}

// Run renders views until ctx is done or views is closed.
func (p *Printer) Run(ctx context.Context, views <-chan core.View) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-views:
			if !ok {
				return
			}
			p.Render(v)
		}
	}
}

// Render prints whatever v adds to the previously rendered view.
func (p *Printer) Render(v core.View) {
	if v.Room != p.room {
		p.room = v.Room
		p.printed = 0
		p.failed = make(map[int]bool)
	}
	if v.State != p.state {
		p.state = v.State
		p.printState(v)
	}
	if len(v.Rows) < p.printed {
		p.printed = 0
	}

	for i, row := range v.Rows {
		if i >= p.printed {
			p.printRow(row)
		}
		if row.Message.Failed() && !p.failed[row.Message.Seq] {
			p.failed[row.Message.Seq] = true
			fmt.Fprintln(p.w, p.failure.Render(fmt.Sprintf("  ✗ not delivered: %q (%s)", row.Message.Text, row.Message.DeliveryErr)))
		}
	}
	p.printed = len(v.Rows)
}

func (p *Printer) printState(v core.View) {
	var line string
	switch v.State {
	case core.StateLoading:
		line = p.status.Render(fmt.Sprintf("loading room %s…", v.Room))
	case core.StateActive:
		title := v.Info.Counterpart(p.self)
		if title == "" {
			title = "room " + v.Room
		}
		line = p.status.Render(fmt.Sprintf("── chat with %s (post #%d) ──", title, v.Info.PostID))
	case core.StateFailed:
		line = p.failure.Render(fmt.Sprintf("room %s failed: %v", v.Room, v.Err))
	case core.StateIdle:
		line = p.status.Render("left the room")
	}
	fmt.Fprintln(p.w, line)
}

func (p *Printer) printRow(row core.Row) {
	if row.ShowAvatar() {
		name := row.Message.Sender
		style := p.sender
		if row.Mine {
			name = "you"
			style = p.mine
		}
		fmt.Fprintln(p.w, style.Render(name))
	}
	for _, line := range strings.Split(row.Message.Text, "\n") {
		fmt.Fprintln(p.w, p.body.Render(line))
	}
}
