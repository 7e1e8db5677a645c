package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"resampler/internal/batch"
	"resampler/internal/config"
	"resampler/internal/logx"
	"resampler/internal/report"
	"resampler/internal/resample"
)

var (
	cfgFile      string
	envFile      string
	directory    string
	interval     string
	ratio        string
	minValue     float64
	format       string
	originalDate bool
	allowZero    bool
	timezone     string
	logLevel     string
	noProgress   bool
	summaryFmt   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "resample",
		Short: "Split CSV bar files into training, validation and test sets",
		Long: `Resample reads every CSV file of a directory, groups the bars by day and
assigns whole days, weeks or months to training, validation and test subsets
in a repeating train:valid:test ratio. Each subset is written with contiguous
synthetic dates to <dir>/ResampledData/<name>_resampled.csv.

Examples:
  resample -d ./data
  resample -d ./data -i w -r 3:1:1
  resample -d ./data -i m -r 8:2:0 --min 1.0 --format parquet`,
		SilenceUsage: true,
		RunE:         run,
	}

	// Flags
	rootCmd.Flags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "env file path")
	rootCmd.Flags().StringVarP(&directory, "directory", "d", ".", "directory containing the input CSV files")
	rootCmd.Flags().StringVarP(&interval, "interval", "i", "d", "period granularity: d (day), w (week), m (month)")
	rootCmd.Flags().StringVarP(&ratio, "ratio", "r", "7:2:1", "train:valid:test ratio, each part 0-9")
	rootCmd.Flags().Float64Var(&minValue, "min", 0, "drop days with an Open/High/Low/Close below this value (0 disables)")
	rootCmd.Flags().StringVar(&format, "format", "csv", "output format: csv, json, parquet")
	rootCmd.Flags().BoolVar(&originalDate, "original-date", false, "append the original date as a last column")
	rootCmd.Flags().BoolVar(&allowZero, "allow-zero", false, "allow 0 for the training and validation parts of the ratio")
	rootCmd.Flags().StringVar(&timezone, "tz", "Local", "time zone the timestamps are recorded in")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	rootCmd.Flags().StringVar(&summaryFmt, "summary", "table", "summary output: table, json")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	startedAt := time.Now()

	// Load configuration
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Override config with CLI flags
	flags := cmd.Flags()
	if flags.Changed("directory") {
		cfg.Input.Dir = directory
	}
	if flags.Changed("interval") {
		cfg.Split.Interval = interval
	}
	if flags.Changed("ratio") {
		cfg.Split.Ratio = ratio
	}
	if flags.Changed("min") {
		cfg.Split.MinValue = minValue
	}
	if flags.Changed("format") {
		cfg.Output.Format = format
	}
	if flags.Changed("original-date") {
		cfg.Output.IncludeOriginalDate = originalDate
	}
	if flags.Changed("allow-zero") {
		cfg.Split.AllowZeroSplits = allowZero
	}
	if flags.Changed("tz") {
		cfg.Input.Timezone = timezone
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	logger, err := logx.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	rs, err := resample.New(opts, logger)
	if err != nil {
		return err
	}

	runner := batch.NewRunner(batch.Options{
		Dir:          cfg.Input.Dir,
		Pattern:      cfg.Input.Pattern,
		OutputDir:    cfg.Output.Dir,
		Suffix:       cfg.Output.Suffix,
		Format:       cfg.Format(),
		OriginalDate: cfg.Output.IncludeOriginalDate,
	}, rs, logger)

	files, err := runner.Files()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: %s", batch.ErrNoInputFiles, cfg.Input.Dir)
	}

	logger.Info("starting",
		zap.Int("files", len(files)),
		zap.String("interval", opts.Granularity.String()),
		zap.String("ratio", opts.Ratio.String()),
		zap.Float64("min_value", opts.MinValue),
		zap.String("output", runner.OutputDir()),
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted. Stopping after the current file...")
		cancel()
	}()

	// Setup progress bar
	var bar *progressbar.ProgressBar
	if !noProgress {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Resampling"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]█[reset]",
				SaucerHead:    "[green]█[reset]",
				SaucerPadding: "░",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		runner.SetProgressCallback(func(done, total int) {
			bar.Set(done)
		})
	}

	summary, runErr := runner.Run(ctx)
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if summary == nil {
		return runErr
	}

	rep := report.New(summary, cfg, startedAt)
	if cfg.Output.Report {
		if _, err := rep.WriteJSON(summary.OutputDir, logger); err != nil {
			logger.Warn("unable to write run report", zap.Error(err))
		}
	}

	var fatal *batch.FatalError
	if errors.As(runErr, &fatal) || errors.Is(runErr, context.Canceled) {
		return runErr
	}

	// Output results
	if summaryFmt == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(rep); err != nil {
			return err
		}
	} else if err := rep.RenderTable(os.Stdout); err != nil {
		return err
	}

	if summary.Processed == 0 {
		return fmt.Errorf("no file could be resampled: %w", summary.Err)
	}
	return runErr
}
