package main

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable draws a rounded go-pretty table when out is a terminal and
// falls back to tab-separated lines otherwise so scripts can cut columns.
func renderTable(out io.Writer, headers []string, rows [][]string, aligns []columnAlignment) string {
	if shouldColorize(out) {
		return prettyTable(headers, rows, aligns)
	}
	return plainTable(headers, rows)
}

func prettyTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func plainTable(headers []string, rows [][]string) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	var builder strings.Builder
	builder.WriteString(strings.Join(headers, "\t"))
	for _, row := range rows {
		cells := make([]string, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				cells[i] = row[i]
			}
		}
		builder.WriteString("\n")
		builder.WriteString(strings.Join(cells, "\t"))
	}
	return builder.String()
}
