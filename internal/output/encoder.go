package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"

	"resampler/internal/record"
)

// Row is one output line
type Row struct {
	Dataset      string `json:"dataset" parquet:"dataset"`
	Date         string `json:"date" parquet:"date"`
	Time         string `json:"time" parquet:"time"`
	Open         string `json:"open" parquet:"open"`
	High         string `json:"high" parquet:"high"`
	Low          string `json:"low" parquet:"low"`
	Close        string `json:"close" parquet:"close"`
	Up           string `json:"up" parquet:"up"`
	Down         string `json:"down" parquet:"down"`
	OriginalDate string `json:"original_date,omitempty" parquet:"original_date,optional"`
}

// Format selects the output encoding
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts csv, json or parquet
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use: csv, json, parquet)", s)
	}
}

// Extension returns the file extension without the dot
func (f Format) Extension() string { return string(f) }

// Encoder serializes rows. Close flushes; it does not close the underlying writer.
type Encoder interface {
	Encode(r Row) error
	Close() error
}

// EncoderOptions controls optional columns
type EncoderOptions struct {
	OriginalDate bool
}

// NewEncoder creates the encoder for format f writing to w
func NewEncoder(f Format, w io.Writer, opts EncoderOptions) (Encoder, error) {
	switch f {
	case FormatCSV, "":
		return newCSVEncoder(w, opts)
	case FormatJSON:
		return &jsonEncoder{w: w, opts: opts}, nil
	case FormatParquet:
		return &parquetEncoder{w: parquet.NewGenericWriter[Row](w), opts: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", f)
	}
}

// Header returns the CSV header columns
func Header(opts EncoderOptions) []string {
	h := append([]string(nil), record.Header...)
	if opts.OriginalDate {
		h = append(h, "OriginalDate")
	}
	return h
}

// csvEncoder writes the row text as is. Fields never hold a comma, and
// payload values must come out exactly as they were read, so nothing is
// escaped or requoted.
type csvEncoder struct {
	w    *bufio.Writer
	opts EncoderOptions
	rec  []string
}

func newCSVEncoder(w io.Writer, opts EncoderOptions) (*csvEncoder, error) {
	e := &csvEncoder{w: bufio.NewWriter(w), opts: opts}
	if err := e.writeRecord(Header(opts)); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return e, nil
}

func (e *csvEncoder) Encode(r Row) error {
	e.rec = append(e.rec[:0], r.Date, r.Time, r.Open, r.High, r.Low, r.Close, r.Up, r.Down)
	if e.opts.OriginalDate {
		e.rec = append(e.rec, r.OriginalDate)
	}
	return e.writeRecord(e.rec)
}

func (e *csvEncoder) writeRecord(fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := e.w.WriteString(f); err != nil {
			return err
		}
	}
	return e.w.WriteByte('\n')
}

func (e *csvEncoder) Close() error {
	return e.w.Flush()
}

// unquoted returns r with the payload values stripped of their CSV quoting,
// for the typed formats
func unquoted(r Row) Row {
	r.Open = record.Unquote(r.Open)
	r.High = record.Unquote(r.High)
	r.Low = record.Unquote(r.Low)
	r.Close = record.Unquote(r.Close)
	r.Up = record.Unquote(r.Up)
	r.Down = record.Unquote(r.Down)
	return r
}

// jsonEncoder writes one indented array on Close
type jsonEncoder struct {
	w    io.Writer
	opts EncoderOptions
	rows []Row
}

func (e *jsonEncoder) Encode(r Row) error {
	if !e.opts.OriginalDate {
		r.OriginalDate = ""
	}
	e.rows = append(e.rows, unquoted(r))
	return nil
}

func (e *jsonEncoder) Close() error {
	rows := e.rows
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(e.w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

type parquetEncoder struct {
	w    *parquet.GenericWriter[Row]
	opts EncoderOptions
}

func (e *parquetEncoder) Encode(r Row) error {
	if !e.opts.OriginalDate {
		r.OriginalDate = ""
	}
	_, err := e.w.Write([]Row{unquoted(r)})
	return err
}

func (e *parquetEncoder) Close() error {
	return e.w.Close()
}
