package qa

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/datastory/internal/digest"
)

// Facts flattens the digest into independent sentences, one per inventory,
// date range, whole-period field statistic, correlation block, month bucket
// and year bucket. Each fact stands on its own for embedding.
func Facts(d *digest.Digest) []string {
	numeric := d.Numeric()
	out := make([]string, 0, 3+len(numeric)+len(d.ByMonth)+len(d.ByYear))

	out = append(out, fmt.Sprintf("The dataset includes the following columns: %s. These fields represent the data.",
		strings.Join(d.Fields.Names(), ", ")))
	out = append(out, fmt.Sprintf("Timespan | Date | Time period = The dataset consists of the data from %s to %s",
		d.DateRange.Start, d.DateRange.End))

	for _, f := range numeric {
		s := d.WholePeriod[f]
		out = append(out, fmt.Sprintf("For the whole period, This is the summary statistics of the field %s: "+
			"the mean value is %s, the min value is %s, the max value is %s, the median is %s, the sd value is %s",
			f, digest.FormatValue(s.Mean), digest.FormatValue(s.Min), digest.FormatValue(s.Max),
			digest.FormatValue(s.Median), digest.FormatValue(s.Std)))
	}
	if len(numeric) > 1 {
		out = append(out, CorrelationText(d))
	}
	for _, m := range d.ByMonth {
		head := fmt.Sprintf("This is the statistics summary of the month: %d, year: %d.", m.Month, m.Year)
		out = append(out, bucketFact(head, numeric, m.Metrics))
	}
	for _, y := range d.ByYear {
		head := fmt.Sprintf("This is the statistics summary of the whole year: %d.", y.Year)
		out = append(out, bucketFact(head, numeric, y.Metrics))
	}
	return out
}

func bucketFact(head string, numeric []string, metrics map[string]digest.Metrics) string {
	var b strings.Builder
	b.WriteString(head)
	for _, f := range numeric {
		m, ok := metrics[f]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, " The %s: max is %s, mean is %s, min is %s, sd is %s.", f,
			digest.FormatValue(m.Max), digest.FormatValue(m.Mean), digest.FormatValue(m.Min), digest.FormatValue(m.Std))
	}
	return b.String()
}

// Context joins facts into a single block for prompting.
func Context(d *digest.Digest) string {
	return strings.Join(Facts(d), "\n")
}
