// Package digest defines the StatisticalDigest: the persisted, read-only
// summary of one uploaded dataset that every narrative and retrieval
// component reads.
package digest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Field kinds as recorded in the inventory.
const (
	KindNumeric  = "numeric"
	KindTemporal = "temporal"
	KindString   = "string"
)

// TimeLayout is the textual form of dates inside a digest.
const TimeLayout = "2006-01-02 15:04:05"

// Digest is the structured statistical summary of a dataset.
type Digest struct {
	Fields      Inventory                      `json:"fields"`
	DateRange   DateRange                      `json:"date_range"`
	WholePeriod map[string]WholeStat           `json:"whole_period_stat"`
	Correlation map[string]map[string]*float64 `json:"correlation"`
	ByMonth     []MonthBucket                  `json:"summary_by_month"`
	ByYear      []YearBucket                   `json:"summary_by_year"`
	Meta        Meta                           `json:"meta"`
}

// Field is one inventory entry.
type Field struct {
	Name string
	Kind string
}

// Inventory maps field name to kind and keeps declaration order. It encodes
// as a JSON object whose keys follow that order.
type Inventory []Field

// DateRange is the temporal span of the dataset.
type DateRange struct {
	Start Timestamp `json:"start"`
	End   Timestamp `json:"end"`
}

// WholeStat is the whole-period summary of one numeric field. Nil means the
// statistic is undefined.
type WholeStat struct {
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Std    *float64 `json:"std"`
}

// Metrics is the per-bucket summary of one numeric field.
type Metrics struct {
	Mean *float64 `json:"mean"`
	Max  *float64 `json:"max"`
	Min  *float64 `json:"min"`
	Std  *float64 `json:"std"`
}

// MonthBucket aggregates the rows of one calendar month.
type MonthBucket struct {
	Year    int                `json:"year"`
	Month   int                `json:"month"`
	Metrics map[string]Metrics `json:"metrics"`
}

// YearBucket aggregates the rows of one calendar year.
type YearBucket struct {
	Year    int                `json:"year"`
	Metrics map[string]Metrics `json:"metrics"`
}

// Meta records how the digest was built.
type Meta struct {
	DateField   string `json:"date_field"`
	Rows        int    `json:"rows"`
	DatedRows   int    `json:"dated_rows"`
	SkippedRows int    `json:"skipped_rows"`
	Precision   int    `json:"precision"`
	ZeroFilled  bool   `json:"zero_filled,omitempty"`
}

// Numeric returns numeric field names in declaration order.
func (d *Digest) Numeric() []string {
	var out []string
	for _, f := range d.Fields {
		if f.Kind == KindNumeric {
			out = append(out, f.Name)
		}
	}
	return out
}

// Years returns the years present in summary_by_year, ascending.
func (d *Digest) Years() []int {
	out := make([]int, 0, len(d.ByYear))
	for _, y := range d.ByYear {
		out = append(out, y.Year)
	}
	sort.Ints(out)
	return out
}

// Encode returns the canonical JSON document.
func (d *Digest) Encode() ([]byte, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal digest: %w", err)
	}
	return b, nil
}

// Decode parses a JSON document produced by Encode and rejects documents
// that break the digest invariants.
func Decode(b []byte) (*Digest, error) {
	var d Digest
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse digest: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Names returns the field names in order.
func (inv Inventory) Names() []string {
	out := make([]string, len(inv))
	for i, f := range inv {
		out[i] = f.Name
	}
	return out
}

// Kind returns the kind of the named field.
func (inv Inventory) Kind(name string) (string, bool) {
	for _, f := range inv {
		if f.Name == name {
			return f.Kind, true
		}
	}
	return "", false
}

func (inv Inventory) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range inv {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Kind)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (inv *Inventory) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("fields: expected object")
	}
	var out Inventory
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("fields: expected key")
		}
		var kind string
		if err := dec.Decode(&kind); err != nil {
			return fmt.Errorf("fields.%s: %w", name, err)
		}
		out = append(out, Field{Name: name, Kind: kind})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*inv = out
	return nil
}

// Timestamp is a time encoded with TimeLayout.
type Timestamp struct {
	time.Time
}

func (t Timestamp) String() string { return t.Format(TimeLayout) }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(TimeLayout))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// Float returns a pointer to v, for building digests by hand.
func Float(v float64) *float64 { return &v }
