package analysis

import (
	"context"
	"sort"

	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/table"
)

type bucketKey struct{ year, month int }

// Buckets groups dated rows by (year, month) and by year and summarizes every
// numeric column per group. Output is chronological. A column with no value
// in a bucket is left out of that bucket unless opt.ZeroFillNulls is set.
func Buckets(ctx context.Context, t *table.Table, dc *DateColumn, opt Options) ([]digest.MonthBucket, []digest.YearBucket, error) {
	monthRows := map[bucketKey][]int{}
	yearRows := map[int][]int{}
	for i := 0; i < t.Rows; i++ {
		if !dc.Valid[i] {
			continue
		}
		ts := dc.Times[i]
		k := bucketKey{ts.Year(), int(ts.Month())}
		monthRows[k] = append(monthRows[k], i)
		yearRows[k.year] = append(yearRows[k.year], i)
	}

	months := make([]bucketKey, 0, len(monthRows))
	for k := range monthRows {
		months = append(months, k)
	}
	sort.Slice(months, func(i, j int) bool {
		if months[i].year != months[j].year {
			return months[i].year < months[j].year
		}
		return months[i].month < months[j].month
	})
	years := make([]int, 0, len(yearRows))
	for y := range yearRows {
		years = append(years, y)
	}
	sort.Ints(years)

	cols := t.Numeric()
	byMonth := make([]digest.MonthBucket, len(months))
	byYear := make([]digest.YearBucket, len(years))
	err := fanOut(ctx, opt.Workers, len(months)+len(years), func(i int) {
		if i < len(months) {
			k := months[i]
			byMonth[i] = digest.MonthBucket{Year: k.year, Month: k.month, Metrics: bucketMetrics(cols, monthRows[k], opt)}
			return
		}
		y := years[i-len(months)]
		byYear[i-len(months)] = digest.YearBucket{Year: y, Metrics: bucketMetrics(cols, yearRows[y], opt)}
	})
	if err != nil {
		return nil, nil, err
	}
	return byMonth, byYear, nil
}

func bucketMetrics(cols []*table.Column, rows []int, opt Options) map[string]digest.Metrics {
	out := make(map[string]digest.Metrics, len(cols))
	for _, c := range cols {
		xs := valid(c.Nums, rows)
		if len(xs) == 0 {
			if opt.ZeroFillNulls {
				out[c.Name] = zeroFill(digest.Metrics{})
			}
			continue
		}
		m := summarize(xs, opt.Precision)
		if opt.ZeroFillNulls {
			m = zeroFill(m)
		}
		out[c.Name] = m
	}
	return out
}

func zeroFill(m digest.Metrics) digest.Metrics {
	for _, p := range []**float64{&m.Mean, &m.Max, &m.Min, &m.Std} {
		if *p == nil {
			*p = digest.Float(0)
		}
	}
	return m
}
