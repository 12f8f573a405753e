package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/example/lstore/internal/exec"
)

var (
	primaryColor = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7C79FF"}
	successColor = lipgloss.AdaptiveColor{Light: "#02BA84", Dark: "#02D98E"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#FF5F56", Dark: "#FF6B6B"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)
)

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("error:")+" "+err.Error())
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf(format, args...)))
}

// renderResult prints res as an aligned table.
func renderResult(w io.Writer, res *exec.Result) {
	if len(res.Columns) == 0 {
		fmt.Fprintln(w, res.Message)
		return
	}
	widths := make([]int, len(res.Columns))
	for i, col := range res.Columns {
		widths[i] = lipgloss.Width(col)
	}
	for _, row := range res.Rows {
		for i, cell := range row {
			if n := lipgloss.Width(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}
	header := make([]string, len(res.Columns))
	for i, col := range res.Columns {
		header[i] = headerStyle.Width(widths[i]).Render(col)
	}
	fmt.Fprintln(w, strings.Join(header, " | "))
	separator := make([]string, len(widths))
	for i, n := range widths {
		separator[i] = strings.Repeat("-", n)
	}
	fmt.Fprintln(w, labelStyle.Render(strings.Join(separator, "-+-")))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = lipgloss.NewStyle().Width(widths[i]).Align(lipgloss.Right).Render(cell)
		}
		fmt.Fprintln(w, strings.Join(cells, " | "))
	}
	fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("(%s)", res.Message)))
}

// renderPanel prints a titled block of label/value lines.
func renderPanel(w io.Writer, title string, lines [][2]string) {
	width := 0
	for _, l := range lines {
		if n := lipgloss.Width(l[0]); n > width {
			width = n
		}
	}
	body := make([]string, 0, len(lines)+1)
	body = append(body, titleStyle.Render(title))
	for _, l := range lines {
		body = append(body, labelStyle.Width(width).Render(l[0])+"  "+l[1])
	}
	fmt.Fprintln(w, panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, body...)))
}
