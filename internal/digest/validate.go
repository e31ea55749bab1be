package digest

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("invalid digest")

// Validate checks the structural invariants of a digest: every numeric field
// is present in the whole-period and correlation sections, buckets only carry
// numeric fields, buckets are chronological, year buckets cover exactly the
// years of the month buckets, and the correlation matrix is symmetric.
func (d *Digest) Validate() error {
	var errs []error
	numeric := map[string]bool{}
	for _, f := range d.Numeric() {
		numeric[f] = true
		if _, ok := d.WholePeriod[f]; !ok {
			errs = append(errs, fmt.Errorf("whole_period_stat: missing %q", f))
		}
		if _, ok := d.Correlation[f]; !ok {
			errs = append(errs, fmt.Errorf("correlation: missing %q", f))
		}
	}
	for f := range d.WholePeriod {
		if !numeric[f] {
			errs = append(errs, fmt.Errorf("whole_period_stat: %q is not numeric", f))
		}
	}
	for a, row := range d.Correlation {
		if !numeric[a] {
			errs = append(errs, fmt.Errorf("correlation: %q is not numeric", a))
			continue
		}
		for b, r := range row {
			if a == b {
				errs = append(errs, fmt.Errorf("correlation: self pair %q", a))
				continue
			}
			back, ok := d.Correlation[b][a]
			if !ok || !sameValue(r, back) {
				errs = append(errs, fmt.Errorf("correlation: %q/%q not symmetric", a, b))
			}
		}
	}

	if !d.DateRange.Start.IsZero() && d.DateRange.End.Before(d.DateRange.Start.Time) {
		errs = append(errs, errors.New("date_range: end before start"))
	}

	monthYears := map[int]bool{}
	prev := -1
	for _, m := range d.ByMonth {
		key := m.Year*100 + m.Month
		if m.Month < 1 || m.Month > 12 {
			errs = append(errs, fmt.Errorf("summary_by_month: invalid month %d", m.Month))
		}
		if key <= prev {
			errs = append(errs, fmt.Errorf("summary_by_month: %d-%02d out of order", m.Year, m.Month))
		}
		prev = key
		monthYears[m.Year] = true
		errs = append(errs, checkMetrics("summary_by_month", m.Metrics, numeric)...)
	}
	prev = -1 << 31
	for _, y := range d.ByYear {
		if y.Year <= prev {
			errs = append(errs, fmt.Errorf("summary_by_year: %d out of order", y.Year))
		}
		prev = y.Year
		if !monthYears[y.Year] {
			errs = append(errs, fmt.Errorf("summary_by_year: %d has no month buckets", y.Year))
		}
		delete(monthYears, y.Year)
		errs = append(errs, checkMetrics("summary_by_year", y.Metrics, numeric)...)
	}
	for y := range monthYears {
		errs = append(errs, fmt.Errorf("summary_by_year: missing %d", y))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func checkMetrics(section string, metrics map[string]Metrics, numeric map[string]bool) []error {
	var errs []error
	for f := range metrics {
		if !numeric[f] {
			errs = append(errs, fmt.Errorf("%s: %q is not numeric", section, f))
		}
	}
	return errs
}

func sameValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// FormatValue renders a statistic with its shortest decimal form, or "N/A"
// when undefined.
func FormatValue(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
