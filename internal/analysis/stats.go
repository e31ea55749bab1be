package analysis

import (
	"context"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/table"
)

// WholePeriod summarizes every numeric column over all rows, including rows
// whose date did not parse.
func WholePeriod(ctx context.Context, t *table.Table, opt Options) (map[string]digest.WholeStat, error) {
	cols := t.Numeric()
	slots := make([]digest.WholeStat, len(cols))
	err := fanOut(ctx, opt.Workers, len(cols), func(i int) {
		slots[i] = FieldStat(valid(cols[i].Nums, nil), opt.Precision)
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]digest.WholeStat, len(cols))
	for i, c := range cols {
		out[c.Name] = slots[i]
	}
	return out, nil
}

// FieldStat computes mean, median, min, max and sample standard deviation
// of xs. Empty input leaves every statistic nil; a single value leaves std
// nil.
func FieldStat(xs []float64, precision int) digest.WholeStat {
	var s digest.WholeStat
	if len(xs) == 0 {
		return s
	}
	m := summarize(xs, precision)
	s.Mean, s.Min, s.Max, s.Std = m.Mean, m.Min, m.Max, m.Std
	if med, err := stats.Median(xs); err == nil {
		s.Median = round(med, precision)
	}
	return s
}

// summarize computes the bucket metrics of xs, which must not be empty.
func summarize(xs []float64, precision int) digest.Metrics {
	var m digest.Metrics
	mean, std := stat.MeanStdDev(xs, nil)
	m.Mean = round(mean, precision)
	if len(xs) > 1 {
		m.Std = round(std, precision)
	}
	if lo, err := stats.Min(xs); err == nil {
		m.Min = round(lo, precision)
	}
	if hi, err := stats.Max(xs); err == nil {
		m.Max = round(hi, precision)
	}
	return m
}

// Correlation computes the Pearson coefficient of every pair of numeric
// columns over rows where both values are present. Each unordered pair is
// computed once and stored in both directions. Self pairs are omitted.
func Correlation(ctx context.Context, t *table.Table, opt Options) (map[string]map[string]*float64, error) {
	cols := t.Numeric()
	type pair struct{ a, b int }
	var pairs []pair
	for i := range cols {
		for j := i + 1; j < len(cols); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}
	slots := make([]*float64, len(pairs))
	err := fanOut(ctx, opt.Workers, len(pairs), func(k int) {
		p := pairs[k]
		slots[k] = Pearson(cols[p.a].Nums, cols[p.b].Nums, opt.Precision)
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]*float64, len(cols))
	for _, c := range cols {
		out[c.Name] = map[string]*float64{}
	}
	for k, p := range pairs {
		a, b := cols[p.a].Name, cols[p.b].Name
		out[a][b] = slots[k]
		out[b][a] = slots[k]
	}
	return out, nil
}

// Pearson returns the rounded correlation of x and y over indexes where
// neither is NaN. It is nil when fewer than two complete pairs exist or
// either side has zero variance.
func Pearson(x, y []float64, precision int) *float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 || constant(xs) || constant(ys) {
		return nil
	}
	return round(stat.Correlation(xs, ys, nil), precision)
}

func constant(xs []float64) bool {
	for _, v := range xs[1:] {
		if v != xs[0] {
			return false
		}
	}
	return true
}

// valid returns the non-NaN values of xs, limited to rows when rows is not
// nil.
func valid(xs []float64, rows []int) []float64 {
	var out []float64
	if rows == nil {
		out = make([]float64, 0, len(xs))
		for _, v := range xs {
			if !math.IsNaN(v) {
				out = append(out, v)
			}
		}
		return out
	}
	for _, i := range rows {
		if v := xs[i]; !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// round rounds half away from zero. NaN and Inf are undefined and yield nil.
func round(v float64, precision int) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r, err := stats.Round(v, precision)
	if err != nil {
		return nil
	}
	if r == 0 {
		r = 0 // drop negative zero
	}
	return &r
}
