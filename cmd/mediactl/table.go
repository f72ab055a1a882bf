package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// field is one line of a record listing.
type field struct {
	name  string
	value string
}

// renderFields prints a record as a borderless name/value listing. Names
// are right-aligned against the values; empty values show as "-". Names
// are bold only on terminals.
func renderFields(fields []field, tty bool) string {
	if len(fields) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleDefault)
	tw.Style().Options = table.OptionsNoBordersAndSeparators

	for _, f := range fields {
		value := f.value
		if value == "" {
			value = "-"
		}
		tw.AppendRow(table.Row{f.name, value})
	}

	name := table.ColumnConfig{Number: 1, Align: text.AlignRight}
	if tty {
		name.Colors = text.Colors{text.Bold}
	}
	tw.SetColumnConfigs([]table.ColumnConfig{name, {Number: 2, Align: text.AlignLeft}})

	return tw.Render()
}

// renderList prints rows under a header. Short rows are padded.
func renderList(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(toRow(row, len(headers)))
	}
	return tw.Render()
}

func toRow(values []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(values) {
			row[i] = values[i]
		} else {
			row[i] = ""
		}
	}
	return row
}
