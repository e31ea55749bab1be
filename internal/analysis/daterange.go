package analysis

import (
	"fmt"
	"time"

	"github.com/KaramelBytes/datastory/internal/dates"
	"github.com/KaramelBytes/datastory/internal/table"
)

const maxSkippedSamples = 5

// DateColumn is the canonical date column parsed row by row.
type DateColumn struct {
	Field string
	// Times holds the parsed value per row; Valid marks rows that parsed.
	Times []time.Time
	Valid []bool
	// Skipped counts rows whose date was empty or unparseable.
	Skipped int
	// Samples keeps a few offending raw values for diagnostics.
	Samples    []string
	Start, End time.Time
}

// DateRange resolves the canonical date column of t, parses every row and
// reports the span of the parsed values. Unparseable rows are skipped and
// counted. A missing date column, or one without a single parseable value,
// is an error.
func DateRange(t *table.Table, r dates.Resolver) (*DateColumn, error) {
	field, err := r.ResolveField(t.Names())
	if err != nil {
		return nil, err
	}
	col := t.Column(field)
	dc := &DateColumn{
		Field: field,
		Times: make([]time.Time, t.Rows),
		Valid: make([]bool, t.Rows),
	}
	seen := false
	for i := 0; i < t.Rows; i++ {
		raw := col.Raw[i]
		ts, err := r.Parse(raw)
		if err != nil {
			dc.Skipped++
			if len(dc.Samples) < maxSkippedSamples {
				dc.Samples = append(dc.Samples, raw)
			}
			continue
		}
		dc.Times[i] = ts
		dc.Valid[i] = true
		if !seen || ts.Before(dc.Start) {
			dc.Start = ts
		}
		if !seen || ts.After(dc.End) {
			dc.End = ts
		}
		seen = true
	}
	if dc.Skipped == t.Rows {
		return nil, fmt.Errorf("field %q has no parseable dates: %w", field, dates.ErrUnparsed)
	}
	return dc, nil
}
