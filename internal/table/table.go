// Package table loads uploaded tabular files into an immutable, column-typed
// RawTable.
package table

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/datastory/internal/dates"
)

// Kind is the declared primitive type of a column.
type Kind string

const (
	KindNumeric  Kind = "numeric"
	KindTemporal Kind = "temporal"
	KindString   Kind = "string"
)

// Column holds the raw text of every cell plus, for numeric columns, the
// parsed values. Null cells are "" in Raw and NaN in Nums.
type Column struct {
	Name string
	Kind Kind
	Raw  []string
	Nums []float64
}

// Len returns the number of cells.
func (c *Column) Len() int { return len(c.Raw) }

// Null reports whether row i holds no value.
func (c *Column) Null(i int) bool {
	if c.Kind == KindNumeric {
		return math.IsNaN(c.Nums[i])
	}
	return c.Raw[i] == ""
}

// Float returns the numeric value at row i.
func (c *Column) Float(i int) (float64, bool) {
	if c.Kind != KindNumeric || math.IsNaN(c.Nums[i]) {
		return 0, false
	}
	return c.Nums[i], true
}

// Table is an ordered set of equally sized columns.
type Table struct {
	Name     string
	Columns  []*Column
	Rows     int
	Warnings []string
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Names returns column names in declaration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Numeric returns the numeric columns in declaration order.
func (t *Table) Numeric() []*Column {
	var out []*Column
	for _, c := range t.Columns {
		if c.Kind == KindNumeric {
			out = append(out, c)
		}
	}
	return out
}

// Options controls how cell text is typed.
type Options struct {
	// MaxRows limits rows kept; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, picked from the file extension.
	Delimiter rune
	// DecimalSeparator of numbers. If 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// Resolver decides which string columns are temporal.
	Resolver dates.Resolver
}

// DefaultOptions returns the options used for uploads.
func DefaultOptions() Options {
	return Options{
		MaxRows:          1_000_000,
		DecimalSeparator: '.',
		Resolver:         dates.Default(),
	}
}

// FromRecords builds a table from a header and its records. Short records are
// padded with nulls; extra cells are dropped.
func FromRecords(name string, header []string, records [][]string, opt Options) (*Table, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("%s: missing header row", name)
	}
	if opt.Resolver.Formats == nil {
		opt.Resolver = dates.Default()
	}
	t := &Table{Name: name}
	seen := map[string]int{}
	for i, h := range header {
		n := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if n == "" {
			n = fmt.Sprintf("column_%d", i+1)
		}
		if k := seen[n]; k > 0 {
			n = fmt.Sprintf("%s.%d", n, k)
		}
		seen[n]++
		t.Columns = append(t.Columns, &Column{Name: n})
	}
	limit := len(records)
	if opt.MaxRows > 0 && limit > opt.MaxRows {
		t.Warnings = append(t.Warnings, fmt.Sprintf("kept only %d/%d rows due to MaxRows", opt.MaxRows, limit))
		limit = opt.MaxRows
	}
	for _, c := range t.Columns {
		c.Raw = make([]string, 0, limit)
	}
	for _, rec := range records[:limit] {
		for j, c := range t.Columns {
			v := ""
			if j < len(rec) {
				v = normalizeCell(rec[j])
			}
			c.Raw = append(c.Raw, v)
		}
	}
	t.Rows = limit
	for _, c := range t.Columns {
		declare(c, opt)
	}
	return t, nil
}

// declare assigns the column kind: numeric when every non-null cell is a
// number, temporal when every non-null cell is a date, string otherwise.
func declare(c *Column, opt Options) {
	nums := make([]float64, len(c.Raw))
	nonNull := 0
	numeric := true
	for i, v := range c.Raw {
		if v == "" {
			nums[i] = math.NaN()
			continue
		}
		nonNull++
		x, ok := parseNumeric(v, opt)
		if !ok {
			numeric = false
			break
		}
		nums[i] = x
	}
	if nonNull > 0 && numeric {
		c.Kind = KindNumeric
		c.Nums = nums
		return
	}
	c.Kind = KindString
	if nonNull == 0 {
		return
	}
	for _, v := range c.Raw {
		if v != "" && !opt.Resolver.CanParse(v) {
			return
		}
	}
	c.Kind = KindTemporal
}

var nullTokens = map[string]struct{}{
	"na": {}, "n/a": {}, "nan": {}, "null": {}, "none": {}, "-nan": {}, "#n/a": {},
}

func normalizeCell(s string) string {
	v := strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	if _, ok := nullTokens[strings.ToLower(v)]; ok {
		return ""
	}
	return v
}
