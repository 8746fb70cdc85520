// Package ui holds terminal rendering helpers for the pm command.
package ui

import (
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3b82f6")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10b981"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func init() {
	// honour NO_COLOR and dumb terminals
	lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).EnvColorProfile())
}

// DisableColor forces plain output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderHeader(s string) string { return headerStyle.Render(s) }

// RenderColor renders s in a hex colour such as an event colour.
func RenderColor(hex, s string) string {
	if hex == "" {
		return s
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Render(s)
}

// RenderScore colours a 0-100 health score.
func RenderScore(score int) string {
	s := lipgloss.NewStyle().Bold(true)
	switch {
	case score >= 80:
		return s.Inherit(passStyle).Render(strconv.Itoa(score))
	case score >= 50:
		return s.Inherit(warnStyle).Render(strconv.Itoa(score))
	default:
		return s.Inherit(failStyle).Render(strconv.Itoa(score))
	}
}

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}
