package digest

import (
	"fmt"
	"sort"
	"strings"
)

// Markdown renders a compact report suitable for prompts or terminals.
func (d *Digest) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	fmt.Fprintf(&b, "Date field: %s\n", d.Meta.DateField)
	fmt.Fprintf(&b, "Period: %s to %s\n", d.DateRange.Start, d.DateRange.End)
	if d.Meta.SkippedRows > 0 {
		fmt.Fprintf(&b, "Rows: %d (dated %d, skipped %d)\n", d.Meta.Rows, d.Meta.DatedRows, d.Meta.SkippedRows)
	} else {
		fmt.Fprintf(&b, "Rows: %d\n", d.Meta.Rows)
	}
	fmt.Fprintf(&b, "Columns: %d\n\n", len(d.Fields))

	b.WriteString("[SCHEMA]\n")
	for _, f := range d.Fields {
		fmt.Fprintf(&b, "- %s: %s", safeName(f.Name), f.Kind)
		if s, ok := d.WholePeriod[f.Name]; ok {
			fmt.Fprintf(&b, " (mean %s, median %s, min %s, max %s, std %s)",
				FormatValue(s.Mean), FormatValue(s.Median), FormatValue(s.Min), FormatValue(s.Max), FormatValue(s.Std))
		}
		b.WriteString("\n")
	}

	numeric := d.Numeric()
	if len(numeric) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		type pair struct {
			A, B string
			R    *float64
			abs  float64
		}
		var pairs []pair
		for i := 0; i < len(numeric); i++ {
			for j := i + 1; j < len(numeric); j++ {
				r := d.Correlation[numeric[i]][numeric[j]]
				p := pair{A: numeric[i], B: numeric[j], R: r, abs: -1}
				if r != nil {
					p.abs = *r
					if p.abs < 0 {
						p.abs = -p.abs
					}
				}
				pairs = append(pairs, p)
			}
		}
		sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].abs > pairs[j].abs })
		maxp := 10
		if len(pairs) < maxp {
			maxp = len(pairs)
		}
		for _, p := range pairs[:maxp] {
			fmt.Fprintf(&b, "- %s ~ %s: r=%s\n", p.A, p.B, FormatValue(p.R))
		}
	}

	if len(d.ByYear) > 0 && len(numeric) > 0 {
		b.WriteString("\n[YEARLY MEANS]\n")
		b.WriteString("| year | " + strings.Join(numeric, " | ") + " |\n")
		b.WriteString("| ---" + strings.Repeat(" | ---", len(numeric)) + " |\n")
		for _, y := range d.ByYear {
			fmt.Fprintf(&b, "| %d", y.Year)
			for _, f := range numeric {
				v := ""
				if m, ok := y.Metrics[f]; ok {
					v = FormatValue(m.Mean)
				}
				b.WriteString(" | " + v)
			}
			b.WriteString(" |\n")
		}
	}
	if d.Meta.ZeroFilled {
		b.WriteString("\n[NOTES]\n- undefined bucket metrics were written as 0\n")
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return strings.ReplaceAll(s, "|", "/")
}
