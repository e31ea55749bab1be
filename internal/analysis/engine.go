// Package analysis turns a RawTable into a StatisticalDigest. Each step is an
// exported function so it can be exercised on its own; Engine.Build assembles
// them into the persisted document.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/datastory/internal/dates"
	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/table"
)

// Options controls digest construction.
type Options struct {
	// Resolver picks and parses the canonical date column.
	Resolver dates.Resolver
	// Precision is the number of decimals statistics are rounded to.
	Precision int
	// Workers bounds per-field fan-out. Values below 1 run sequentially.
	Workers int
	// ZeroFillNulls writes 0 for undefined bucket metrics instead of
	// omitting them. Only for consumers that cannot handle nulls.
	ZeroFillNulls bool
}

// DefaultOptions returns the options used for uploads.
func DefaultOptions() Options {
	return Options{
		Resolver:  dates.Default(),
		Precision: 2,
		Workers:   runtime.NumCPU(),
	}
}

// DigestError reports a failure that prevents a digest from being built.
type DigestError struct {
	Op  string
	Err error
}

func (e *DigestError) Error() string {
	return fmt.Sprintf("digest: %s: %v", e.Op, e.Err)
}

func (e *DigestError) Unwrap() error { return e.Err }

// Engine builds digests.
type Engine struct {
	opt Options
	log *slog.Logger
}

// NewEngine returns an engine. A nil logger discards output.
func NewEngine(opt Options, log *slog.Logger) *Engine {
	if opt.Resolver.Formats == nil {
		opt.Resolver.Formats = dates.DefaultFormats()
	}
	if opt.Resolver.Candidates == nil {
		opt.Resolver.Candidates = dates.DefaultCandidates()
	}
	if opt.Precision < 0 {
		opt.Precision = 2
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{opt: opt, log: log}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opt }

// Build computes the digest for t. Running it twice on the same table yields
// byte-identical documents.
func (e *Engine) Build(ctx context.Context, t *table.Table) (*digest.Digest, error) {
	if t == nil || len(t.Columns) == 0 {
		return nil, &DigestError{Op: "load", Err: errors.New("table has no columns")}
	}
	began := time.Now()
	d := &digest.Digest{Fields: Inventory(t)}

	dc, err := DateRange(t, e.opt.Resolver)
	if err != nil {
		return nil, &DigestError{Op: "date range", Err: err}
	}
	if dc.Skipped > 0 {
		e.log.Warn("skipped rows with unparseable dates",
			"field", dc.Field, "skipped", dc.Skipped, "rows", t.Rows, "sample", dc.Samples)
	}
	d.DateRange = digest.DateRange{Start: digest.Timestamp{Time: dc.Start}, End: digest.Timestamp{Time: dc.End}}
	e.log.Debug("date range resolved", "field", dc.Field, "start", dc.Start, "end", dc.End, "elapsed", time.Since(began))

	step := time.Now()
	if d.WholePeriod, err = WholePeriod(ctx, t, e.opt); err != nil {
		return nil, &DigestError{Op: "whole period", Err: err}
	}
	e.log.Debug("whole period computed", "fields", len(d.WholePeriod), "elapsed", time.Since(step))

	step = time.Now()
	if d.Correlation, err = Correlation(ctx, t, e.opt); err != nil {
		return nil, &DigestError{Op: "correlation", Err: err}
	}
	e.log.Debug("correlation computed", "elapsed", time.Since(step))

	step = time.Now()
	if d.ByMonth, d.ByYear, err = Buckets(ctx, t, dc, e.opt); err != nil {
		return nil, &DigestError{Op: "buckets", Err: err}
	}
	e.log.Debug("buckets computed", "months", len(d.ByMonth), "years", len(d.ByYear), "elapsed", time.Since(step))

	d.Meta = digest.Meta{
		DateField:   dc.Field,
		Rows:        t.Rows,
		DatedRows:   t.Rows - dc.Skipped,
		SkippedRows: dc.Skipped,
		Precision:   e.opt.Precision,
		ZeroFilled:  e.opt.ZeroFillNulls,
	}
	if err := d.Validate(); err != nil {
		return nil, &DigestError{Op: "validate", Err: err}
	}
	e.log.Info("digest built", "table", t.Name, "rows", t.Rows, "numeric", len(d.Numeric()), "elapsed", time.Since(began))
	return d, nil
}

// Inventory maps every column to its declared kind, in column order.
func Inventory(t *table.Table) digest.Inventory {
	inv := make(digest.Inventory, 0, len(t.Columns))
	for _, c := range t.Columns {
		kind := digest.KindString
		switch c.Kind {
		case table.KindNumeric:
			kind = digest.KindNumeric
		case table.KindTemporal:
			kind = digest.KindTemporal
		}
		inv = append(inv, digest.Field{Name: c.Name, Kind: kind})
	}
	return inv
}

// fanOut runs fn for every index in [0, n) with at most workers in flight.
// Callers write results into per-index slots so output does not depend on
// scheduling.
func fanOut(ctx context.Context, workers, n int, fn func(i int)) error {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
