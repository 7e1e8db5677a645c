package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"resampler/internal/aggregate"
	"resampler/internal/batch"
	"resampler/internal/config"
	"resampler/internal/output"
)

// FileName is the run report written to the output directory
const FileName = ".lastrun.json"

// Subset describes one written subset of a file
type Subset struct {
	Kind   string  `json:"kind"`
	First  string  `json:"first,omitempty"`
	Last   string  `json:"last,omitempty"`
	Days   int     `json:"days"`
	Rows   int     `json:"rows"`
	Mean   float64 `json:"close_mean"`
	StdDev float64 `json:"close_stddev"`
}

// File is the report entry for a successfully written file
type File struct {
	Input    string          `json:"input"`
	Output   string          `json:"output"`
	Rows     int             `json:"rows"`
	Stats    aggregate.Stats `json:"stats"`
	Subsets  []Subset        `json:"subsets"`
	Warnings []string        `json:"warnings,omitempty"`
}

type failedEntry struct {
	Input  string `json:"input"`
	Reason string `json:"reason"`
}

// RunReport summarizes one batch run
type RunReport struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   string         `json:"elapsed"`
	Config    *config.Config `json:"config"`
	OutputDir string         `json:"output_dir"`
	Files     []File         `json:"files"`
	Failed    []failedEntry  `json:"failed,omitempty"`
}

// Describe returns the mean and sample standard deviation of values. The
// deviation is 0 for fewer than two values.
func Describe(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean = stat.Mean(values, nil)
	if len(values) > 1 {
		stddev = stat.StdDev(values, nil)
	}
	return mean, stddev
}

// New builds a report from a batch summary
func New(summary *batch.Summary, cfg *config.Config, startedAt time.Time) *RunReport {
	rep := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
		Elapsed:   summary.Elapsed.Round(time.Millisecond).String(),
		Config:    cfg,
		OutputDir: summary.OutputDir,
	}

	for _, fr := range summary.Files {
		if !fr.OK() {
			rep.Failed = append(rep.Failed, failedEntry{Input: fr.Input, Reason: fr.Err.Error()})
			continue
		}
		f := File{
			Input:    fr.Input,
			Output:   fr.Output,
			Rows:     fr.Result.Rows(),
			Stats:    fr.Result.Stats,
			Warnings: fr.Result.Warnings,
		}
		for _, span := range fr.Result.Spans {
			f.Subsets = append(f.Subsets, subsetOf(span, fr.Result.Closes[span.Kind]))
		}
		rep.Files = append(rep.Files, f)
	}
	return rep
}

func subsetOf(span output.Span, closes []float64) Subset {
	s := Subset{Kind: span.Kind.String(), Days: span.Days, Rows: span.Rows}
	if !span.Empty() {
		s.First = span.First.Format(output.DateLayout)
		s.Last = span.Last.Format(output.DateLayout)
	}
	s.Mean, s.StdDev = Describe(closes)
	return s
}

// WriteJSON writes the report to dir/.lastrun.json
func (r *RunReport) WriteJSON(dir string, logger *zap.Logger) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	p := filepath.Join(dir, FileName)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", err
	}
	if logger != nil {
		logger.Info("report written", zap.String("path", p), zap.Int("files", len(r.Files)), zap.Int("failed", len(r.Failed)))
	}
	return p, nil
}

// RenderTable prints one row per written subset followed by the failures
func (r *RunReport) RenderTable(w io.Writer) error {
	if len(r.Files) > 0 {
		table := tablewriter.NewTable(w,
			tablewriter.WithHeader([]string{"File", "Subset", "From", "To", "Days", "Rows", "Close Mean", "Close SD"}),
		)
		for _, f := range r.Files {
			name := filepath.Base(f.Input)
			for _, s := range f.Subsets {
				from, to := s.First, s.Last
				if s.Days == 0 {
					from, to = "-", "-"
				}
				if err := table.Append([]string{
					name,
					s.Kind,
					from,
					to,
					fmt.Sprintf("%d", s.Days),
					fmt.Sprintf("%d", s.Rows),
					fmt.Sprintf("%.4f", s.Mean),
					fmt.Sprintf("%.4f", s.StdDev),
				}); err != nil {
					return err
				}
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if len(r.Failed) > 0 {
		fmt.Fprintf(w, "\n%d file(s) failed: %s\n", len(r.Failed), joinFailedReasons(r.Failed))
	}
	fmt.Fprintf(w, "\nProcessed %d file(s) in %s (run %s)\n", len(r.Files), r.Elapsed, r.RunID)
	return nil
}

func joinFailedReasons(failed []failedEntry) string {
	var b strings.Builder
	for i, f := range failed {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(filepath.Base(f.Input))
		b.WriteString(": ")
		b.WriteString(f.Reason)
		if i >= 4 && len(failed) > 6 {
			b.WriteString(fmt.Sprintf(" (+%d more)", len(failed)-5))
			break
		}
	}
	return b.String()
}

