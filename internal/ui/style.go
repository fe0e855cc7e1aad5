// Package ui renders terminal output for the tsync CLI.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/fieldwork/tasksync/internal/orchestrator"
	"github.com/fieldwork/tasksync/internal/schema"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func init() {
	if !ColorEnabled() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// ColorEnabled reports whether stdout is a terminal that accepts color.
func ColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// RenderAccent highlights headings and progress markers.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass marks success.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn marks something worth attention.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail marks an error.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted de-emphasizes secondary details.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderHeader styles a table header cell.
func RenderHeader(s string) string { return headerStyle.Render(s) }

// RenderTaskStatus colors a task status.
func RenderTaskStatus(s schema.Status) string {
	switch s {
	case schema.StatusCompleted:
		return RenderPass(string(s))
	case schema.StatusInProgress:
		return RenderAccent(string(s))
	default:
		return RenderMuted(string(s))
	}
}

// RenderSyncStatus colors an engine status.
func RenderSyncStatus(s orchestrator.Status) string {
	switch s {
	case orchestrator.StatusError:
		return RenderFail(string(s))
	case orchestrator.StatusIdle:
		return RenderPass(string(s))
	default:
		return RenderWarn(string(s))
	}
}
