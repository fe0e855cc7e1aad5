package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fieldwork/tasksync/internal/schema"
)

const cellMaxWidth = 40
const cellEllipsis = "..."

// FormatTable renders headers and rows as left-aligned columns separated by
// two spaces. Cells may carry ANSI styling.
func FormatTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(row []string) {
		for i, cell := range row {
			b.WriteString(cell)
			if i == len(row)-1 {
				break
			}
			b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
		}
		b.WriteByte('\n')
	}

	styled := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = RenderHeader(h)
	}
	writeRow(styled)
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}

// Truncate shortens plain text to the table cell width and flattens line
// breaks.
func Truncate(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(s)
	runes := []rune(s)
	if len(runes) <= cellMaxWidth {
		return s
	}
	return string(runes[:cellMaxWidth-len(cellEllipsis)]) + cellEllipsis
}

// TaskTable renders tasks in list order.
func TaskTable(tasks []schema.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			t.ID,
			RenderTaskStatus(t.Status),
			Truncate(t.Title),
			t.AssignedTo,
			FormatDate(&t.AssignedDate),
			FormatDate(t.DueDate),
		})
	}
	return FormatTable([]string{"ID", "STATUS", "TITLE", "ASSIGNED TO", "ASSIGNED", "DUE"}, rows)
}

// FormatDate prints a day, or "-" when t is unset.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}
