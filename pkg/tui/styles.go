// Package tui is the terminal front end for learners: a question list, and
// for the open question its steps, a command transcript and the check gate.
package tui

import "github.com/charmbracelet/lipgloss"

// Step indicator glyphs. They carry meaning without relying on color.
const (
	GlyphPending         = "○"
	GlyphActive          = "●"
	GlyphCompleted       = "✓"
	GlyphActiveCompleted = "◉"
	GlyphCursor          = "▸"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

// --- Header ---

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var badgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

// --- Step list ---

var (
	stepPending = lipgloss.NewStyle().
			Foreground(colorDim)

	stepActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	stepCompleted = lipgloss.NewStyle().
			Foreground(colorGreen)
)

// --- Panels ---

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)

	commandStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	outputStyle = lipgloss.NewStyle().
			Foreground(colorWhite)
)

// --- Question list ---

var (
	listItem = lipgloss.NewStyle().
			Foreground(colorWhite)

	listSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	listDesc = lipgloss.NewStyle().
			Foreground(colorDim)
)

// --- Status line ---

var (
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	passedStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	runningStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)
)

// --- Key bar ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	keyBarStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

var spinnerStyle = lipgloss.NewStyle().
	Foreground(colorYellow)
