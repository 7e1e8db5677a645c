package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resampler/internal/output"
	"resampler/internal/record"
	"resampler/internal/resample"
	"resampler/pkg/model"
)

const header = `"Date","Time","Open","High","Low","Close","Up","Down"`

func writeInput(t *testing.T, dir, name string, days int) {
	t.Helper()
	var b strings.Builder
	b.WriteString(header + "\n")
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		fmt.Fprintf(&b, "%s,16:00,1,2,1,2,0,0\n", start.AddDate(0, 0, i).Format("01/02/2006"))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0644))
}

func newRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	rs, err := resample.New(resample.Options{
		Granularity: model.Day,
		Ratio:       model.Ratio{7, 2, 1},
		Location:    time.UTC,
	}, nil)
	require.NoError(t, err)
	return NewRunner(opts, rs, nil)
}

func TestRunWritesEveryFile(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "b.csv", 10)
	writeInput(t, dir, "a.csv", 20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	r := newRunner(t, Options{Dir: dir, OutputDir: "ResampledData", Suffix: "_resampled"})

	var calls []int
	r.SetProgressCallback(func(done, total int) {
		assert.Equal(t, 2, total)
		calls = append(calls, done)
	})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, summary.Err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []int{1, 2}, calls)

	require.Len(t, summary.Files, 2)
	assert.Equal(t, "a.csv", filepath.Base(summary.Files[0].Input), "files are processed in name order")
	assert.Equal(t, filepath.Join(dir, "ResampledData", "a_resampled.csv"), summary.Files[0].Output)
	assert.Equal(t, 20, summary.Files[0].Result.Rows())

	data, err := os.ReadFile(filepath.Join(dir, "ResampledData", "b_resampled.csv"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 11)
}

func TestRunNoFiles(t *testing.T) {
	r := newRunner(t, Options{Dir: t.TempDir(), OutputDir: "out"})
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoInputFiles)
}

func TestRunSkipsBadFile(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "good.csv", 5)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.csv"),
		[]byte(header+"\n01/04/2021,09:30,1,1\n"), 0644))

	r := newRunner(t, Options{Dir: dir, OutputDir: "out", Suffix: "_resampled"})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	require.Error(t, summary.Err)
	assert.True(t, errors.Is(summary.Err, record.ErrMalformedRecord))
	assert.Contains(t, summary.Err.Error(), "bad.csv")

	_, err = os.Stat(filepath.Join(dir, "out", "bad_resampled.csv"))
	assert.True(t, os.IsNotExist(err), "output of a failed file is removed")
	_, err = os.Stat(filepath.Join(dir, "out", "good_resampled.csv"))
	assert.NoError(t, err)
}

func TestRunOutputDirNotCreatable(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "a.csv", 3)
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	r := newRunner(t, Options{Dir: dir, OutputDir: filepath.Join(blocker, "out")})
	_, err := r.Run(context.Background())

	var fe *FatalError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, "create output directory", fe.Op)
}

func TestRunOutputFileNotCreatable(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "a.csv", 3)
	writeInput(t, dir, "b.csv", 3)
	// a directory squatting on the output name makes os.Create fail
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "out", "a_resampled.csv"), 0755))

	r := newRunner(t, Options{Dir: dir, OutputDir: "out", Suffix: "_resampled"})
	var calls int
	r.SetProgressCallback(func(done, total int) { calls++ })

	summary, err := r.Run(context.Background())

	var fe *FatalError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, "create output file", fe.Op)
	assert.Equal(t, filepath.Join(dir, "out", "a_resampled.csv"), fe.Path)

	require.NotNil(t, summary)
	assert.Empty(t, summary.Files)
	assert.Zero(t, calls)
	_, err = os.Stat(filepath.Join(dir, "out", "b_resampled.csv"))
	assert.True(t, os.IsNotExist(err), "later files are not processed")
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "a.csv", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newRunner(t, Options{Dir: dir, OutputDir: "out"})
	summary, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Files)
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		input  string
		expect string
	}{
		{
			name:   "relative output dir",
			opts:   Options{Dir: "/data", OutputDir: "ResampledData", Suffix: "_resampled"},
			input:  "/data/ES.csv",
			expect: "/data/ResampledData/ES_resampled.csv",
		},
		{
			name:   "absolute output dir and parquet",
			opts:   Options{Dir: "/data", OutputDir: "/out", Suffix: "_r", Format: output.FormatParquet},
			input:  "/data/NQ.csv",
			expect: "/out/NQ_r.parquet",
		},
		{
			name:   "json without suffix",
			opts:   Options{Dir: "/data", OutputDir: "o", Format: output.FormatJSON},
			input:  "/data/CL.csv",
			expect: "/data/o/CL.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(tt.opts, nil, nil)
			assert.Equal(t, tt.expect, r.OutputPath(tt.input))
		})
	}
}
