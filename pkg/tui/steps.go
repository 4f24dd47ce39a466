package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/steplab/pkg/markup"
	"github.com/ormasoftchile/steplab/pkg/tutorial"
)

// stepsPanel renders the step list of the open question with one
// indicator per step.
type stepsPanel struct {
	titles     []string
	indicators []tutorial.Indicator
	width      int
}

// SetQuestion derives step titles from each step's first heading.
func (p *stepsPanel) SetQuestion(q *tutorial.Question) {
	p.titles = make([]string, len(q.Steps))
	for i, s := range q.Steps {
		title := markup.Parse(s.Content).Title
		if title == "" {
			title = fmt.Sprintf("Step %d", tutorial.StepNumber(i))
		}
		p.titles[i] = title
	}
	p.indicators = nil
}

// Sync copies the indicators from progress.
func (p *stepsPanel) Sync(progress *tutorial.Progress) {
	if progress == nil {
		p.indicators = nil
		return
	}
	p.indicators = progress.Indicators()
}

// Clear forgets the question.
func (p *stepsPanel) Clear() {
	p.titles = nil
	p.indicators = nil
}

func glyph(ind tutorial.Indicator) string {
	switch {
	case ind.Active && ind.Completed:
		return stepActive.Render(GlyphActiveCompleted)
	case ind.Active:
		return stepActive.Render(GlyphActive)
	case ind.Completed:
		return stepCompleted.Render(GlyphCompleted)
	}
	return stepPending.Render(GlyphPending)
}

// Dots renders the compact indicator strip, one glyph per step.
func (p *stepsPanel) Dots() string {
	parts := make([]string, len(p.indicators))
	for i, ind := range p.indicators {
		parts[i] = glyph(ind)
	}
	return strings.Join(parts, " ")
}

// View renders the numbered step list.
func (p *stepsPanel) View() string {
	var b strings.Builder
	for i, title := range p.titles {
		var ind tutorial.Indicator
		if i < len(p.indicators) {
			ind = p.indicators[i]
		}
		cursor := "  "
		if ind.Active {
			cursor = stepActive.Render(GlyphCursor) + " "
		}
		label := fmt.Sprintf("%d. %s", tutorial.StepNumber(i), title)
		if p.width > 8 {
			label = runewidth.Truncate(label, p.width-6, "…")
		}
		style := stepPending
		switch {
		case ind.Active:
			style = stepActive
		case ind.Completed:
			style = stepCompleted
		}
		b.WriteString(cursor + glyph(ind) + " " + style.Render(label))
		if i < len(p.titles)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
