package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// Format renders report as a GitHub-flavored markdown table.
func (f *MarkdownFormatter) Format(report Report) (string, error) {
	if len(report.Header) == 0 {
		return "", nil
	}

	var sb strings.Builder
	if report.Title != "" {
		sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(report.Title)))
	}
	writeMarkdownRow(&sb, report.Header)

	sep := make([]string, len(report.Header))
	for i := range sep {
		sep[i] = "---"
	}
	writeMarkdownRow(&sb, sep)

	for _, row := range report.Rows {
		writeMarkdownRow(&sb, row)
	}
	if len(report.Footer) > 0 {
		sb.WriteString("\n**" + escapeMarkdownCell(strings.Join(nonEmpty(report.Footer), " ")) + "**\n")
	}
	return sb.String(), nil
}

func writeMarkdownRow(sb *strings.Builder, cells []string) {
	escaped := make([]string, len(cells))
	for i, cell := range cells {
		escaped[i] = escapeMarkdownCell(cell)
	}
	sb.WriteString("| " + strings.Join(escaped, " | ") + " |\n")
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
