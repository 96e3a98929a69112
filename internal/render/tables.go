package render

import (
	"regexp"
	"strings"
)

var sepCellRe = regexp.MustCompile(`^:?-+:?$`)

// renderTables converts GFM pipe tables: a header row, a separator row of
// dashes (with optional alignment colons), then zero or more body rows.
func renderTables(t string) string {
	lines := strings.Split(t, "\n")
	var out []string
	for i := 0; i < len(lines); {
		if i+1 < len(lines) && isTableRow(lines[i]) && isTableSeparator(lines[i+1]) {
			aligns := parseAligns(lines[i+1])

			var b strings.Builder
			b.WriteString("<table><thead><tr>")
			for ci, cell := range splitRow(lines[i]) {
				writeCell(&b, "th", cell, alignClass(aligns, ci))
			}
			b.WriteString("</tr></thead><tbody>")

			i += 2
			for i < len(lines) && isTableRow(lines[i]) {
				b.WriteString("<tr>")
				for ci, cell := range splitRow(lines[i]) {
					writeCell(&b, "td", cell, alignClass(aligns, ci))
				}
				b.WriteString("</tr>")
				i++
			}
			b.WriteString("</tbody></table>")
			out = append(out, b.String())
			continue
		}
		out = append(out, lines[i])
		i++
	}
	return strings.Join(out, "\n")
}

func isTableRow(line string) bool {
	return strings.Contains(line, "|") && strings.TrimSpace(line) != ""
}

func isTableSeparator(line string) bool {
	if !strings.Contains(line, "|") {
		return false
	}
	cells := splitRow(line)
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !sepCellRe.MatchString(c) {
			return false
		}
	}
	return true
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func parseAligns(sep string) []string {
	cells := splitRow(sep)
	aligns := make([]string, len(cells))
	for i, c := range cells {
		left := strings.HasPrefix(c, ":")
		right := strings.HasSuffix(c, ":")
		switch {
		case left && right:
			aligns[i] = "align-center"
		case right:
			aligns[i] = "align-right"
		case left:
			aligns[i] = "align-left"
		}
	}
	return aligns
}

func alignClass(aligns []string, i int) string {
	if i < len(aligns) {
		return aligns[i]
	}
	return ""
}

func writeCell(b *strings.Builder, tag, content, class string) {
	if class != "" {
		b.WriteString("<" + tag + ` class="` + class + `">` + content + "</" + tag + ">")
		return
	}
	b.WriteString("<" + tag + ">" + content + "</" + tag + ">")
}
