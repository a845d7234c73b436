package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"permtest/adapters/excel"
	"permtest/adapters/rng"
	"permtest/adapters/terminal"
	domain "permtest/domain/permutation"
	"permtest/internal"
	"permtest/internal/api"
	"permtest/internal/config"
	"permtest/internal/errors"
	"permtest/internal/permutation"
	"permtest/ports"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:           "permtest",
		Short:         "Two-sample permutation tests on the difference in means",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newTestCmd(appConfig),
		newPrecisionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(exitCode(err))
	}
}

// testParams collects the flags of the test command
type testParams struct {
	sample1, sample2 string
	source           ports.SampleSource
	permutations     int
	sidedness        string
	exact            bool
	progress         int
	plot             bool
	seed             int64
	workers          int
	asJSON           bool
	includeNull      bool
}

func newTestCmd(appConfig *config.Config) *cobra.Command {
	var p testParams

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run a permutation test on two samples",
		Long: `Run a permutation test on mean(sample1) - mean(sample2).

Samples are given inline as comma separated lists (NA and NaN mark missing
values) or read from two columns of a CSV or Excel file.

Examples:
  permtest test --sample1 1,2,3 --sample2 4,5 --exact
  permtest test --file data.xlsx --col1 control --col2 treated --permutations 50000 --plot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd.Context(), cmd.OutOrStdout(), appConfig, p)
		},
	}

	cmd.Flags().StringVar(&p.sample1, "sample1", "", "First sample as a comma separated list")
	cmd.Flags().StringVar(&p.sample2, "sample2", "", "Second sample as a comma separated list")
	cmd.Flags().StringVar(&p.source.Path, "file", "", "CSV or Excel file holding both samples")
	cmd.Flags().StringVar(&p.source.Sheet, "sheet", "", "Excel sheet name (default: first sheet)")
	cmd.Flags().StringVar(&p.source.Column1, "col1", "", "Header of the first sample column")
	cmd.Flags().StringVar(&p.source.Column2, "col2", "", "Header of the second sample column")
	cmd.Flags().IntVar(&p.permutations, "permutations", appConfig.Engine.Permutations, "Number of random permutations (ignored with --exact)")
	cmd.Flags().StringVar(&p.sidedness, "sidedness", string(domain.SidednessBoth), "Alternative hypothesis: both, smaller or larger")
	cmd.Flags().BoolVar(&p.exact, "exact", false, "Enumerate every assignment instead of sampling")
	cmd.Flags().IntVar(&p.progress, "progress", appConfig.Engine.ProgressStride, "Report progress every N permutations (0 disables)")
	cmd.Flags().BoolVar(&p.plot, "plot", false, "Draw a histogram of the null distribution")
	cmd.Flags().Int64Var(&p.seed, "seed", appConfig.Engine.Seed, "Random seed (0 seeds from the clock)")
	cmd.Flags().IntVar(&p.workers, "workers", appConfig.Engine.Workers, "Worker goroutines")
	cmd.Flags().BoolVar(&p.asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&p.includeNull, "include-null", false, "Include the null distribution in JSON output")

	return cmd
}

func runTest(ctx context.Context, out io.Writer, appConfig *config.Config, p testParams) error {
	logger := internal.NewLogger(appConfig.Logging.Level)

	sample1, sample2, err := loadSamples(logger, p)
	if err != nil {
		return err
	}
	sidedness, err := domain.ParseSidedness(p.sidedness)
	if err != nil {
		return err
	}

	engine := permutation.NewEngine(rng.NewSeededAdapter())
	engine.SetLogger(logger)
	engine.SetWorkers(appConfig.Engine.Workers)
	engine.SetMaxExactAssignments(appConfig.Engine.MaxExactAssignments)
	engine.SetMaxPermutations(appConfig.Engine.MaxPermutations)

	if p.progress > 0 {
		bar := terminal.NewStderrProgressBar()
		defer bar.Finish()
		engine.SetProgressReporter(bar)
	}
	// JSON output stays machine readable
	if p.plot && !p.asJSON {
		engine.SetPlotRenderer(terminal.NewHistogramRenderer(out, 0, 0))
	}

	opts := domain.Options{
		Sidedness:    sidedness,
		Exact:        p.exact,
		ShowProgress: p.progress,
		PlotResult:   p.plot && !p.asJSON,
		Workers:      p.workers,
		Seed:         p.seed,
	}

	result, err := engine.Run(ctx, sample1, sample2, p.permutations, opts)
	if err != nil {
		return err
	}

	if p.asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(api.NewTestResponse(result, p.includeNull))
	}
	return printResult(out, result, len(sample1), len(sample2))
}

func loadSamples(logger *internal.Logger, p testParams) ([]float64, []float64, error) {
	if p.source.Path != "" {
		if p.sample1 != "" || p.sample2 != "" {
			return nil, nil, errors.InvalidArgument("use either --file or --sample1/--sample2, not both")
		}
		return excel.NewDataReader(logger).ReadSamples(p.source)
	}
	if p.sample1 == "" || p.sample2 == "" {
		return nil, nil, errors.InvalidArgument("both --sample1 and --sample2 are required without --file")
	}
	sample1, err := parseSampleList(p.sample1)
	if err != nil {
		return nil, nil, errors.Wrap(err, "sample1")
	}
	sample2, err := parseSampleList(p.sample2)
	if err != nil {
		return nil, nil, errors.Wrap(err, "sample2")
	}
	return sample1, sample2, nil
}

// parseSampleList parses "1, 2.5, NA" into values, with missing markers as NaN
func parseSampleList(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		switch strings.ToLower(f) {
		case "na", "nan", "null", "-":
			values = append(values, math.NaN())
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("%q is not a number", f))
		}
		values = append(values, v)
	}
	return values, nil
}

func printResult(out io.Writer, result *domain.Result, n1, n2 int) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	mode := fmt.Sprintf("random (%d permutations)", result.EffectiveCount)
	if result.Exact {
		mode = fmt.Sprintf("exact (%d assignments)", result.EffectiveCount)
	}

	fmt.Fprintf(w, "%s\t%s\n", labelStyle.Render("run"), result.RunID)
	fmt.Fprintf(w, "%s\t%d vs %d\n", labelStyle.Render("sizes"), n1, n2)
	fmt.Fprintf(w, "%s\t%s\n", labelStyle.Render("mode"), mode)
	fmt.Fprintf(w, "%s\t%s\n", labelStyle.Render("sidedness"), result.Sidedness)
	fmt.Fprintf(w, "%s\t%.6g\n", labelStyle.Render("observed difference"), result.ObservedDifference)
	fmt.Fprintf(w, "%s\t%.6g\n", labelStyle.Render("effect size (g)"), result.EffectSize)
	fmt.Fprintf(w, "%s\t%.6g\n", labelStyle.Render("p-value"), result.PValue)
	fmt.Fprintf(w, "%s\tmean %.4g, sd %.4g, 95%% [%.4g, %.4g]\n", labelStyle.Render("null distribution"),
		result.Summary.Mean, result.Summary.StdDev, result.Summary.P025, result.Summary.P975)
	if err := w.Flush(); err != nil {
		return err
	}

	for _, d := range result.Diagnostics {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("warning %s: %s", d.Code, d.Message)))
	}
	return nil
}

func newPrecisionCmd() *cobra.Command {
	var precision, alpha float64
	var level int

	cmd := &cobra.Command{
		Use:   "precision",
		Short: "Estimate the permutations needed for a p-value precision",
		Long: `Estimate how many random permutations keep the p-value within
--precision of its true value at the given significance level.

Example: permtest precision --precision 0.005 --alpha 0.05 --level 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := permutation.EstimatePermutations(precision, alpha, level)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().Float64Var(&precision, "precision", 0.01, "Allowed deviation of the p-value")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "Significance level")
	cmd.Flags().IntVar(&level, "level", 2, "Confidence level in standard deviations (1, 2 or 3)")

	return cmd
}

// exitCode maps error codes to process exit statuses
func exitCode(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeInvalidArgument, errors.CodeInvalidInput:
		return 2
	case errors.CodeCancelled:
		return 130
	default:
		return 1
	}
}
