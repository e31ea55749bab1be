package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datastory/internal/analysis"
	"github.com/KaramelBytes/datastory/internal/table"
)

var (
	digFormat      string
	digOutputPath  string
	digSession     string
	digDescription string
	digNarrate     bool
	digDelimiter   string
	digDecimal     string
	digThousands   string
	digMaxRows     int
	digSheetName   string
	digSheetIndex  int
	digPrecision   int
	digZeroFill    bool
)

var digestCmd = &cobra.Command{
	Use:   "digest <file>",
	Short: "Build the statistical digest of a CSV/TSV/XLSX table",
	Example: `  datastory digest weather.csv
  datastory digest weather.csv --format json -o stat.json
  datastory digest weather.csv --session delhi --desc "Daily climate of Delhi" --narrate`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		switch digFormat {
		case "md", "markdown", "json":
		default:
			return fmt.Errorf("unsupported --format: %s (use md|json)", digFormat)
		}
		if cmd.Flags().Changed("precision") {
			cfg.Precision = digPrecision
		}
		if cmd.Flags().Changed("zero-fill") {
			cfg.ZeroFillNulls = digZeroFill
		}
		a, err := newApp(digNarrate)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		if digSession != "" {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			desc := digDescription
			if desc == "" {
				desc = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			sess, d, err := a.pipe.Ingest(ctx, digSession, desc, filepath.Base(path), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Stored digest for session %s\n", sess.ID)
			if digNarrate {
				if err := a.pipe.Narrate(ctx, sess.ID); err != nil {
					fmt.Fprintf(os.Stderr, "⚠ Warning: narrative steps failed: %v\n", err)
				}
			}
			return printDigest(cmd, d.Markdown, d.Encode)
		}

		opt := tableOptions()
		if err := applyTableFlags(&opt); err != nil {
			return err
		}
		var tbl *table.Table
		if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
			tbl, err = table.LoadXLSX(path, digSheetName, digSheetIndex, opt)
		} else {
			tbl, err = table.LoadCSV(path, opt)
		}
		if err != nil {
			return err
		}
		for _, w := range tbl.Warnings {
			fmt.Fprintf(os.Stderr, "⚠ Warning: %s\n", w)
		}
		d, err := analysis.NewEngine(engineOptions(), logger).Build(ctx, tbl)
		if err != nil {
			return err
		}
		return printDigest(cmd, d.Markdown, d.Encode)
	},
}

func printDigest(cmd *cobra.Command, md func() string, enc func() ([]byte, error)) error {
	if digFormat == "json" {
		b, err := enc()
		if err != nil {
			return err
		}
		return writeOut(cmd.OutOrStdout(), digOutputPath, string(b))
	}
	return writeOut(cmd.OutOrStdout(), digOutputPath, md())
}

func applyTableFlags(opt *table.Options) error {
	if digMaxRows > 0 {
		opt.MaxRows = digMaxRows
	}
	switch digDelimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return fmt.Errorf("unsupported --delimiter: %s", digDelimiter)
	}
	// Locale separators
	switch strings.ToLower(strings.TrimSpace(digDecimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "auto":
		opt.DecimalSeparator = 0
	case "":
	default:
		return fmt.Errorf("unsupported --decimal: %s (use '.'|'comma'|'auto')", digDecimal)
	}
	switch strings.ToLower(strings.TrimSpace(digThousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", digThousands)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(digestCmd)
	f := digestCmd.Flags()
	f.StringVar(&digFormat, "format", "md", "output format: md|json")
	f.StringVarP(&digOutputPath, "output", "o", "", "write the digest to this path instead of stdout")
	f.StringVarP(&digSession, "session", "s", "", "store the upload and digest under this session id")
	f.StringVar(&digDescription, "desc", "", "dataset description stored on the session")
	f.BoolVar(&digNarrate, "narrate", false, "with --session: run emotion, description and story steps")
	f.StringVar(&digDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	f.StringVar(&digDecimal, "decimal", "", "decimal separator: '.'|'comma'|'auto'")
	f.StringVar(&digThousands, "thousands", "", "thousands separator: ','|'.'|'space'")
	f.IntVar(&digMaxRows, "max-rows", 0, "maximum rows to process (0 = default limit)")
	f.StringVar(&digSheetName, "sheet-name", "", "XLSX: sheet name to read")
	f.IntVar(&digSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	f.IntVar(&digPrecision, "precision", 2, "decimals statistics are rounded to")
	f.BoolVar(&digZeroFill, "zero-fill", false, "write 0 instead of omitting undefined bucket metrics")
}
