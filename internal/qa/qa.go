// Package qa derives question/answer pairs and retrieval facts from a
// StatisticalDigest. Every function is a pure function of the digest and
// iterates in chronological and field-declaration order, so repeated calls
// produce identical text.
package qa

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/datastory/internal/dates"
	"github.com/KaramelBytes/datastory/internal/digest"
)

// Entry is one question and its answer.
type Entry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Questions asked by this package.
const (
	QuestionTimeSpan = "What is the time period where the data was captured?"
	QuestionMissing  = "Are there any months or years with missing or partial data?"
)

// YearlyQuestion is the question answered by YearlyTrend.
func YearlyQuestion(field string) string {
	return fmt.Sprintf("What is the value of %s change throughout the whole period", field)
}

// MonthlyQuestion is the question answered by MonthlyTrend.
func MonthlyQuestion(year int, field string) string {
	return fmt.Sprintf("What is the value for %s change throughout the year %d?", field, year)
}

// TimeSpan states how many whole calendar years the data covers.
func TimeSpan(d *digest.Digest) Entry {
	start, end := d.DateRange.Start, d.DateRange.End
	years := dates.YearsBetween(start.Time, end.Time)
	return Entry{
		Question: QuestionTimeSpan,
		Answer:   fmt.Sprintf("The data spans about %d years, from %s to %s.", years, start, end),
	}
}

// MissingPeriods reports every year with fewer than twelve observed months,
// naming the months that are missing.
func MissingPeriods(d *digest.Digest) Entry {
	e := Entry{Question: QuestionMissing, Answer: "No"}
	gaps := IncompleteYears(d)
	if len(gaps) == 0 {
		return e
	}
	years := make([]string, len(gaps))
	for i, g := range gaps {
		years[i] = fmt.Sprint(g.Year)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Yes, There are %d year(s) with missing months - %s.", len(gaps), strings.Join(years, ", "))
	for _, g := range gaps {
		names := make([]string, len(g.Missing))
		for i, m := range g.Missing {
			names[i] = m.String()
		}
		fmt.Fprintf(&b, " Year %d has data for only %d month(s). In %d, data is missing for %s.",
			g.Year, g.Observed, g.Year, strings.Join(names, ", "))
	}
	e.Answer = b.String()
	return e
}

// Gap describes a year with incomplete monthly coverage.
type Gap struct {
	Year     int
	Observed int
	Missing  []time.Month
}

// IncompleteYears lists the years of summary_by_month with fewer than twelve
// distinct months, ascending.
func IncompleteYears(d *digest.Digest) []Gap {
	seen := map[int]map[int]bool{}
	for _, m := range d.ByMonth {
		if seen[m.Year] == nil {
			seen[m.Year] = map[int]bool{}
		}
		seen[m.Year][m.Month] = true
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)

	var out []Gap
	for _, y := range years {
		months := seen[y]
		if len(months) >= 12 {
			continue
		}
		g := Gap{Year: y, Observed: len(months)}
		for m := 1; m <= 12; m++ {
			if !months[m] {
				g.Missing = append(g.Missing, time.Month(m))
			}
		}
		out = append(out, g)
	}
	return out
}

// YearlyTrend narrates the yearly mean of field. Years where the field has no
// value are skipped.
func YearlyTrend(d *digest.Digest, field string) Entry {
	var parts []string
	for _, y := range d.ByYear {
		m, ok := y.Metrics[field]
		if !ok || m.Mean == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("In %d, the average %s is %s.", y.Year, field, digest.FormatValue(m.Mean)))
	}
	return Entry{Question: YearlyQuestion(field), Answer: strings.Join(parts, " ")}
}

// MonthlyTrend narrates the monthly mean of field within year.
func MonthlyTrend(d *digest.Digest, year int, field string) Entry {
	var parts []string
	for _, m := range d.ByMonth {
		if m.Year != year {
			continue
		}
		mt, ok := m.Metrics[field]
		if !ok || mt.Mean == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("In %s, the average %s is %s.", time.Month(m.Month), field, digest.FormatValue(mt.Mean)))
	}
	return Entry{Question: MonthlyQuestion(year, field), Answer: strings.Join(parts, " ")}
}

// CorrelationText enumerates every ordered pair of numeric fields and its
// coefficient.
func CorrelationText(d *digest.Digest) string {
	var b strings.Builder
	b.WriteString("The correlation between each fields are as follow, ")
	numeric := d.Numeric()
	for _, a := range numeric {
		row := d.Correlation[a]
		for _, other := range numeric {
			r, ok := row[other]
			if !ok || other == a {
				continue
			}
			fmt.Fprintf(&b, "%s and %s is %s. ", a, other, digest.FormatValue(r))
		}
	}
	return strings.TrimSpace(b.String())
}

// FieldNames summarizes the inventory in one sentence.
func FieldNames(d *digest.Digest) string {
	parts := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		parts[i] = fmt.Sprintf("%s (%s)", f.Name, f.Kind)
	}
	return fmt.Sprintf("The dataset contains the columns: %s.", strings.Join(parts, ", "))
}

// Generate returns the standard question set: time span, missing periods,
// the monthly trend of every numeric field for every year, then the yearly
// trend of every numeric field.
func Generate(d *digest.Digest) []Entry {
	out := []Entry{TimeSpan(d), MissingPeriods(d)}
	numeric := d.Numeric()
	for _, y := range d.Years() {
		for _, f := range numeric {
			out = append(out, MonthlyTrend(d, y, f))
		}
	}
	for _, f := range numeric {
		out = append(out, YearlyTrend(d, f))
	}
	return out
}

// Render formats entries as "Q: ...\nA: ..." blocks separated by blank lines.
func Render(entries []Entry) string {
	blocks := make([]string, len(entries))
	for i, e := range entries {
		blocks[i] = fmt.Sprintf("Q: %s\nA: %s", e.Question, e.Answer)
	}
	return strings.Join(blocks, "\n\n")
}
