package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"attentionguard/internal/aggregate"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 14
	statusIndent     = "  "
)

var (
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleSection = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		return statusKindStyle(kind).Render(base)
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindStyle(kind statusKind) lipgloss.Style {
	switch kind {
	case statusOK:
		return styleOK
	case statusWarn:
		return styleWarn
	case statusError:
		return styleError
	default:
		return styleInfo
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		return []string{styleSection.Render(line), styleSection.Render(rule)}
	}
	return []string{line, rule}
}

// accent renders text in a source's accent colour.
func accent(text, color string, colorize bool) string {
	if !colorize || strings.TrimSpace(color) == "" {
		return text
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render(text)
}

// renderIndicator draws a surface indicator as "[67%] tooltip".
func renderIndicator(ind aggregate.Indicator, colorize bool) string {
	badge := ind.PercentLabel
	if badge == "" {
		badge = "--"
	}
	return fmt.Sprintf("[%s] %s", accent(badge, ind.Color, colorize), ind.Tooltip)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
