package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// Format renders report as a rounded table.
func (f *TableFormatter) Format(report Report) (string, error) {
	if len(report.Header) == 0 {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if report.Title != "" {
		t.SetTitle(report.Title)
	}
	t.AppendHeader(toRow(report.Header))
	for _, row := range report.Rows {
		t.AppendRow(toRow(row))
	}
	if len(report.Footer) > 0 {
		t.AppendFooter(toRow(report.Footer))
	}
	return t.Render(), nil
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, cell := range cells {
		row[i] = cell
	}
	return row
}
