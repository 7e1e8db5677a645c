package resample

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"resampler/internal/aggregate"
	"resampler/internal/output"
	"resampler/internal/partition"
	"resampler/internal/record"
	"resampler/pkg/model"
)

const maxLineSize = 1 << 20

// Options is the immutable configuration of one resampling run
type Options struct {
	Granularity model.Granularity
	Ratio       model.Ratio
	MinValue    float64 // <= 0 disables the filter
	Location    *time.Location
}

// Result describes one processed file
type Result struct {
	HeaderMatched bool                            `json:"header_matched"`
	Stats         aggregate.Stats                 `json:"stats"`
	Warnings      []string                        `json:"warnings,omitempty"`
	Spans         []output.Span                   `json:"spans"`
	Closes        map[model.DatasetKind][]float64 `json:"-"`
	Elapsed       time.Duration                   `json:"elapsed"`
}

// Rows returns the number of rows written across all subsets
func (r *Result) Rows() int {
	n := 0
	for _, s := range r.Spans {
		n += s.Rows
	}
	return n
}

// Resampler runs the parse, aggregate, partition and write pipeline for one
// input stream at a time
type Resampler struct {
	opts        Options
	partitioner *partition.Partitioner
	logger      *zap.Logger
}

// New validates opts and creates a Resampler
func New(opts Options, logger *zap.Logger) (*Resampler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	p, err := partition.New(opts.Granularity, opts.Ratio)
	if err != nil {
		return nil, err
	}
	logger.Debug("resampler ready", zap.Stringer("split", p), zap.Float64("min_value", opts.MinValue))
	return &Resampler{opts: opts, partitioner: p, logger: logger}, nil
}

// Process reads a CSV stream from in and writes the training, validation and
// test rows to enc, in that order. The caller closes enc.
func (r *Resampler) Process(in io.Reader, enc output.Encoder) (*Result, error) {
	startTime := time.Now()
	res := &Result{Closes: make(map[model.DatasetKind][]float64)}

	days, err := r.readDays(in, res)
	if err != nil {
		return nil, err
	}

	first, _ := days.First()
	split := r.partitioner.Split(days)

	w := output.NewWriter(enc, r.logger)
	next := first
	for _, kind := range model.DatasetKinds {
		ds := split.Get(kind)
		span, err := w.Write(ds, next)
		if err != nil {
			return nil, err
		}
		res.Spans = append(res.Spans, span)
		res.Closes[kind] = closeValues(ds)
		next = span.Next
	}

	res.Elapsed = time.Since(startTime)
	return res, nil
}

func (r *Resampler) readDays(in io.Reader, res *Result) (*aggregate.DayMap, error) {
	// a UTF-8 byte order mark would otherwise break the header comparison
	scanner := bufio.NewScanner(transform.NewReader(in, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		return nil, fmt.Errorf("%w: input file is empty", aggregate.ErrEmptyInput)
	}
	if err := record.CheckHeader(scanner.Text()); err != nil {
		r.logger.Warn("first line is not the expected header",
			zap.String("expected", strings.Join(record.Header, ",")),
			zap.Error(err),
		)
		res.Warnings = append(res.Warnings, err.Error())
	} else {
		res.HeaderMatched = true
	}

	parser := record.NewParser(r.opts.Location)
	agg := aggregate.NewAggregator(aggregate.NewMinValueFilter(r.opts.MinValue), r.logger)

	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		bar, err := parser.ParseLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		if err := agg.Add(bar); err != nil {
			return nil, &record.ParseError{Line: lineNo, Text: line, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading line %d: %w", lineNo+1, err)
	}

	days, err := agg.Finish()
	res.Stats = agg.Stats()
	for _, w := range agg.Warnings() {
		res.Warnings = append(res.Warnings, w.Error())
	}
	if err != nil {
		return nil, err
	}
	return days, nil
}

// closeValues collects the numeric Close column of ds, skipping values that
// are not numbers
func closeValues(ds model.Dataset) []float64 {
	values := make([]float64, 0, ds.Rows())
	for _, d := range ds.Days {
		for _, b := range d.Bars {
			v, err := strconv.ParseFloat(record.Unquote(b.Field(model.FieldClose)), 64)
			if err != nil {
				continue
			}
			values = append(values, v)
		}
	}
	return values
}
