package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/steplab/pkg/tutorial"
)

// maxTranscriptLines caps the transcript buffer.
const maxTranscriptLines = 2000

// transcriptLine is one raw line and the style it is drawn with.
type transcriptLine struct {
	text  string
	style lipgloss.Style
}

// transcriptPanel is the scrollable terminal transcript.
type transcriptPanel struct {
	viewport viewport.Model
	lines    []transcriptLine

	width  int
	height int
	ready  bool
}

// SetSize updates the viewport dimensions.
func (p *transcriptPanel) SetSize(width, height int) {
	p.width = width
	p.height = height

	contentW := max(width-4, 1)  // border padding
	contentH := max(height-3, 1) // title + border

	if !p.ready {
		p.viewport = viewport.New(contentW, contentH)
		p.ready = true
	} else {
		p.viewport.Width = contentW
		p.viewport.Height = contentH
	}
	p.refresh()
}

// AppendCommand records a command and its result.
func (p *transcriptPanel) AppendCommand(command string, res *tutorial.CommandResult) {
	p.append("$ "+command, commandStyle)
	for _, line := range tutorial.Lines(res.Output) {
		p.append(line, outputStyle)
	}
	if !res.Success {
		p.append(fmt.Sprintf("[exit %d]", res.ReturnCode), failedStyle)
	}
}

// AppendNote records text that is not command output.
func (p *transcriptPanel) AppendNote(text string, style lipgloss.Style) {
	for _, line := range strings.Split(text, "\n") {
		p.append(line, style)
	}
}

// Reset clears the transcript.
func (p *transcriptPanel) Reset() {
	p.lines = nil
	p.refresh()
}

func (p *transcriptPanel) append(text string, style lipgloss.Style) {
	p.lines = append(p.lines, transcriptLine{text: text, style: style})
	if over := len(p.lines) - maxTranscriptLines; over > 0 {
		p.lines = p.lines[over:]
	}
	p.refresh()
	if p.ready {
		p.viewport.GotoBottom()
	}
}

// refresh truncates lines to the panel width before styling. Wrapped
// output would break the layout.
func (p *transcriptPanel) refresh() {
	if !p.ready {
		return
	}
	w := p.viewport.Width
	out := make([]string, len(p.lines))
	for i, l := range p.lines {
		out[i] = l.style.Render(runewidth.Truncate(l.text, w, "…"))
	}
	p.viewport.SetContent(strings.Join(out, "\n"))
}

// Update handles viewport messages (mouse scroll).
func (p *transcriptPanel) Update(msg tea.Msg) {
	if p.ready {
		p.viewport, _ = p.viewport.Update(msg)
	}
}

func (p *transcriptPanel) PageUp() {
	if p.ready {
		p.viewport.HalfViewUp()
	}
}

func (p *transcriptPanel) PageDown() {
	if p.ready {
		p.viewport.HalfViewDown()
	}
}

// View renders the transcript panel.
func (p *transcriptPanel) View() string {
	title := panelTitle.Render("Terminal")
	content := "  No commands yet."
	if p.ready && len(p.lines) > 0 {
		content = p.viewport.View()
	}
	return panelBorder.Width(max(p.width-2, 1)).Height(max(p.height-2, 1)).Render(title + "\n" + content)
}
