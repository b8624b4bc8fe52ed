package main

import (
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderTable draws rows under headers with an optional footer. Columns whose
// filled cells are all counts or percentages are right-aligned.
func renderTable(headers []string, rows [][]string, footer []string) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(padRow(headers, columns))
	for _, row := range rows {
		tw.AppendRow(padRow(row, columns))
	}
	if len(footer) > 0 {
		tw.AppendFooter(padRow(footer, columns))
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if numericColumn(rows, i) {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignFooter: align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func padRow(cells []string, columns int) table.Row {
	r := make(table.Row, columns)
	for i := range columns {
		if i < len(cells) {
			r[i] = cells[i]
		} else {
			r[i] = ""
		}
	}
	return r
}

func numericColumn(rows [][]string, col int) bool {
	filled := false
	for _, row := range rows {
		if col >= len(row) || row[col] == "" {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSuffix(row[col], "%"), 64); err != nil {
			return false
		}
		filled = true
	}
	return filled
}
