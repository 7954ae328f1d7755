package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"martianoff/roundel/internal/analysis"
	"martianoff/roundel/internal/frontend"
	"martianoff/roundel/internal/specs"
	"martianoff/roundel/precision"
)

var (
	analyzeRange           string
	analyzeErrors          string
	analyzePrecision       string
	analyzeMixedPrecision  string
	analyzeNoInitialErrors bool
	analyzeNoRoundoff      bool
	analyzeMaxSplits       int
	analyzeWorkers         int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file.real]",
	Short: "Analyze the functions of a source file",
	Long: `Analyze every function of a source file, printing one line per
function with its absolute roundoff error bound and result range.

Examples:
  roundel analyze kernels.real
  roundel analyze --range affine --errors affine kernels.real
  roundel analyze --precision float32 --mixed-precision prec.yaml kernels.real`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	addAnalyzeFlags(analyzeCmd)
}

func addAnalyzeFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&analyzeRange, "range", "interval", "Range method: interval, affine or smt")
	fs.StringVar(&analyzeErrors, "errors", "affine", "Error method: interval or affine")
	fs.StringVar(&analyzePrecision, "precision", "float64", "Uniform precision: float32, float64, doubledouble or fixed<n>")
	fs.StringVar(&analyzeMixedPrecision, "mixed-precision", "", "YAML file with per-variable precision overrides")
	fs.BoolVar(&analyzeNoInitialErrors, "no-initial-errors", false, "Disable input-error tracking")
	fs.BoolVar(&analyzeNoRoundoff, "no-roundoff", false, "Disable per-operation roundoff accounting")
	fs.IntVar(&analyzeMaxSplits, "max-splits", 2, "Input-domain subdivision depth on recoverable failures")
	fs.IntVar(&analyzeWorkers, "workers", 0, "Functions analyzed concurrently (0 = number of CPUs)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	prog, err := frontend.Parse(string(content))
	if err != nil {
		return err
	}

	rangeMethod, err := analysis.ParseRangeMethod(analyzeRange)
	if err != nil {
		return err
	}
	errorMethod, err := analysis.ParseErrorMethod(analyzeErrors)
	if err != nil {
		return err
	}
	prec, err := precision.Parse(analyzePrecision)
	if err != nil {
		return err
	}
	precisions := specs.NewPrecisionMap(prec)
	if analyzeMixedPrecision != "" {
		if err := precisions.LoadMixedPrecision(analyzeMixedPrecision); err != nil {
			return err
		}
	}

	driver := analysis.NewDriver(analysis.Options{
		RangeMethod:   rangeMethod,
		ErrorMethod:   errorMethod,
		Precisions:    precisions,
		TrackInitial:  !analyzeNoInitialErrors,
		TrackRoundoff: !analyzeNoRoundoff,
		MaxSplits:     analyzeMaxSplits,
		Workers:       analyzeWorkers,
	})

	results, err := driver.AnalyzeProgram(context.Background(), prog)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: analysis failed: %v\n", res.Function, res.Err)
			continue
		}
		fmt.Printf("%s: abs-error: %s, range: [%s, %s]\n",
			res.Function,
			res.AbsError.Scientific(17),
			res.Range.Lo.Scientific(17),
			res.Range.Hi.Scientific(17))
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "%s: warning: %s\n", res.Function, w)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d function(s) failed", failed, len(results))
	}
	return nil
}
