package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"resampler/internal/output"
	"resampler/internal/resample"
)

// ErrNoInputFiles is returned when the input directory has nothing to process
var ErrNoInputFiles = errors.New("no .csv files found in input directory")

// FatalError is an environment failure that stops the whole batch, since
// every later file would hit it too
type FatalError struct {
	Op   string
	Path string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Options holds the file layout of a batch run
type Options struct {
	Dir          string
	Pattern      string
	OutputDir    string // relative to Dir unless absolute
	Suffix       string
	Format       output.Format
	OriginalDate bool
}

// FileResult is the outcome for one input file
type FileResult struct {
	Input   string           `json:"input"`
	Output  string           `json:"output,omitempty"`
	Result  *resample.Result `json:"result,omitempty"`
	Err     error            `json:"-"`
	Elapsed time.Duration    `json:"elapsed"`
}

// OK reports whether the file was written
func (f FileResult) OK() bool { return f.Err == nil }

// Summary is the outcome of a batch run
type Summary struct {
	Files     []FileResult  `json:"files"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	OutputDir string        `json:"output_dir"`
	Err       error         `json:"-"` // per-file errors combined
	Elapsed   time.Duration `json:"elapsed"`
}

// ProgressCallback is called after each file
type ProgressCallback func(done, total int)

// Runner resamples every matching file of a directory, one at a time
type Runner struct {
	opts         Options
	resampler    *resample.Resampler
	logger       *zap.Logger
	progressFunc ProgressCallback
}

// NewRunner creates a new runner
func NewRunner(opts Options, rs *resample.Resampler, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Pattern == "" {
		opts.Pattern = "*.csv"
	}
	if opts.Format == "" {
		opts.Format = output.FormatCSV
	}
	return &Runner{opts: opts, resampler: rs, logger: logger}
}

// SetProgressCallback sets the progress callback function
func (r *Runner) SetProgressCallback(fn ProgressCallback) {
	r.progressFunc = fn
}

// Files lists the regular files matching the pattern, sorted by name
func (r *Runner) Files() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(r.opts.Dir, r.opts.Pattern))
	if err != nil {
		return nil, fmt.Errorf("listing input files: %w", err)
	}
	files := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// OutputDir returns the directory results are written to
func (r *Runner) OutputDir() string {
	if filepath.IsAbs(r.opts.OutputDir) {
		return r.opts.OutputDir
	}
	return filepath.Join(r.opts.Dir, r.opts.OutputDir)
}

// OutputPath returns the result path for input
func (r *Runner) OutputPath(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(r.OutputDir(), base+r.opts.Suffix+"."+r.opts.Format.Extension())
}

// Run processes every input file. Per-file failures are recorded in the
// summary and the run moves on; a *FatalError is returned as soon as the
// output location cannot be written.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()

	files, err := r.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInputFiles, r.opts.Dir)
	}

	summary := &Summary{OutputDir: r.OutputDir()}
	if err := os.MkdirAll(summary.OutputDir, 0755); err != nil {
		return summary, &FatalError{Op: "create output directory", Path: summary.OutputDir, Err: err}
	}

	for i, input := range files {
		select {
		case <-ctx.Done():
			summary.Elapsed = time.Since(startTime)
			return summary, ctx.Err()
		default:
		}

		fr, err := r.processFile(input)
		if err != nil {
			summary.Elapsed = time.Since(startTime)
			return summary, err
		}
		summary.Files = append(summary.Files, fr)
		if fr.OK() {
			summary.Processed++
		} else {
			summary.Failed++
			summary.Err = multierr.Append(summary.Err, fmt.Errorf("%s: %w", filepath.Base(input), fr.Err))
		}

		if r.progressFunc != nil {
			r.progressFunc(i+1, len(files))
		}
	}

	summary.Elapsed = time.Since(startTime)
	return summary, nil
}

// processFile returns a non-nil error only for fatal conditions
func (r *Runner) processFile(input string) (FileResult, error) {
	startTime := time.Now()
	fr := FileResult{Input: input}
	log := r.logger.With(zap.String("file", filepath.Base(input)))

	in, err := os.Open(input)
	if err != nil {
		log.Error("unable to open input file", zap.Error(err))
		fr.Err = fmt.Errorf("opening input: %w", err)
		return fr, nil
	}
	defer in.Close()

	outPath := r.OutputPath(input)
	out, err := os.Create(outPath)
	if err != nil {
		return fr, &FatalError{Op: "create output file", Path: outPath, Err: err}
	}

	log.Info("resampling", zap.String("output", filepath.Base(outPath)))
	res, err := r.write(in, out)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = &output.WriteError{Err: closeErr}
	}
	fr.Elapsed = time.Since(startTime)

	if err != nil {
		// partial output is discarded
		if rmErr := os.Remove(outPath); rmErr != nil {
			log.Warn("unable to remove partial output", zap.Error(rmErr))
		}
		var we *output.WriteError
		if errors.As(err, &we) {
			return fr, &FatalError{Op: "write output file", Path: outPath, Err: err}
		}
		log.Error("file skipped", zap.Error(err))
		fr.Err = err
		return fr, nil
	}

	fr.Output = outPath
	fr.Result = res
	return fr, nil
}

func (r *Runner) write(in *os.File, out *os.File) (*resample.Result, error) {
	enc, err := output.NewEncoder(r.opts.Format, out, output.EncoderOptions{OriginalDate: r.opts.OriginalDate})
	if err != nil {
		return nil, &output.WriteError{Err: err}
	}
	res, err := r.resampler.Process(in, enc)
	if err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, &output.WriteError{Err: err}
	}
	return res, nil
}
