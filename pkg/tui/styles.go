// Package tui renders live playbook run progress as a Bubble Tea app.
package tui

import "github.com/charmbracelet/lipgloss"

// Step status glyphs — convey meaning without relying on color alone.
const (
	GlyphPending = "○"
	GlyphCurrent = "▸"
	GlyphPassed  = "✓"
	GlyphFailed  = "✗"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var (
	stepPending = lipgloss.NewStyle().
			Foreground(colorWhite).
			Faint(true)

	stepCurrent = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	stepPassed = lipgloss.NewStyle().
			Foreground(colorGreen)

	stepFailed = lipgloss.NewStyle().
			Foreground(colorRed)

	summaryOK = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	summaryFail = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)

	detailStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)
