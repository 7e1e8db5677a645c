package resample

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resampler/internal/aggregate"
	"resampler/internal/output"
	"resampler/internal/record"
	"resampler/pkg/model"
)

const header = `"Date","Time","Open","High","Low","Close","Up","Down"`

func newResampler(t *testing.T, g model.Granularity, r model.Ratio, minValue float64) *Resampler {
	t.Helper()
	rs, err := New(Options{Granularity: g, Ratio: r, MinValue: minValue, Location: time.UTC}, nil)
	require.NoError(t, err)
	return rs
}

func run(t *testing.T, rs *Resampler, input string) (*Result, []string, error) {
	t.Helper()
	var buf bytes.Buffer
	enc, err := output.NewEncoder(output.FormatCSV, &buf, output.EncoderOptions{})
	require.NoError(t, err)

	res, err := rs.Process(strings.NewReader(input), enc)
	require.NoError(t, enc.Close())
	return res, strings.Split(strings.TrimSpace(buf.String()), "\n"), err
}

// dailyInput builds one 16:00 row per day starting at start
func dailyInput(start time.Time, n int, rowFn func(i int) string) string {
	var b strings.Builder
	b.WriteString(header + "\n")
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i)
		if rowFn != nil {
			b.WriteString(rowFn(i))
		} else {
			fmt.Fprintf(&b, "%s,16:00,%d,%d,%d,%d,0,0\n", d.Format("01/02/2006"), 10+i, 11+i, 9+i, 10+i)
		}
	}
	return b.String()
}

func TestProcessTenDayScenario(t *testing.T) {
	rs := newResampler(t, model.Day, model.Ratio{7, 2, 1}, 0)
	input := dailyInput(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), 10, nil)

	res, lines, err := run(t, rs, input)
	require.NoError(t, err)
	require.True(t, res.HeaderMatched)

	require.Len(t, res.Spans, 3)
	assert.Equal(t, "training: 01/01/2021 to 01/07/2021 (7 days, 7 rows)", res.Spans[0].String())
	assert.Equal(t, "validation: 01/08/2021 to 01/09/2021 (2 days, 2 rows)", res.Spans[1].String())
	assert.Equal(t, "test: 01/10/2021 to 01/10/2021 (1 days, 1 rows)", res.Spans[2].String())

	require.Len(t, lines, 11)
	assert.Equal(t, "Date,Time,Open,High,Low,Close,Up,Down", lines[0])
	assert.Equal(t, "01/01/2021,16:00,10,11,9,10,0,0", lines[1])
	assert.Equal(t, "01/10/2021,16:00,19,20,18,19,0,0", lines[10])

	assert.Equal(t, []float64{17, 18}, res.Closes[model.Validation])
}

func TestProcessMinValueDropsDay(t *testing.T) {
	rs := newResampler(t, model.Day, model.Ratio{7, 2, 1}, 1.0)
	input := header + "\n" +
		"01/04/2021,09:30,10,11,9,10,0,0\n" +
		"01/05/2021,09:30,10,11,9,10,0,0\n" +
		"01/05/2021,10:30,10,11,0.0,10,0,0\n" +
		"01/06/2021,09:30,12,13,11,12,0,0\n"

	res, lines, err := run(t, rs, input)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.Days)
	assert.Equal(t, 1, res.Stats.FilteredDays)
	require.Len(t, lines, 3)
	// the Jan 6 row moves up to Jan 5 so the output calendar has no hole
	assert.Equal(t, "01/05/2021,09:30,12,13,11,12,0,0", lines[2])
}

func TestProcessRowCountRoundTrip(t *testing.T) {
	start := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	input := dailyInput(start, 30, func(i int) string {
		d := start.AddDate(0, 0, i).Format("01/02/2006")
		rows := ""
		for h := 0; h <= i%3; h++ {
			rows += fmt.Sprintf("%s,%02d:00,5,6,4,5,0,0\n", d, 9+h)
		}
		return rows
	})

	rs := newResampler(t, model.Day, model.Ratio{3, 1, 1}, 0)
	res, lines, err := run(t, rs, input)
	require.NoError(t, err)

	retained := res.Stats.Bars - res.Stats.DroppedBars - res.Stats.FilteredBars
	assert.Equal(t, retained, res.Rows())
	assert.Equal(t, retained, len(lines)-1)
}

func TestProcessWeekly(t *testing.T) {
	// Mon Jan 4 2021 .. Fri Jan 29, weekdays only
	start := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	var b strings.Builder
	b.WriteString(header + "\n")
	for i := 0; i < 26; i++ {
		d := start.AddDate(0, 0, i)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		fmt.Fprintf(&b, "%s,16:00,1,1,1,1,0,0\n", d.Format("01/02/2006"))
	}

	rs := newResampler(t, model.Week, model.Ratio{2, 1, 1}, 0)
	res, _, err := run(t, rs, b.String())
	require.NoError(t, err)

	assert.Equal(t, 10, res.Spans[0].Days)
	assert.Equal(t, 5, res.Spans[1].Days)
	assert.Equal(t, 5, res.Spans[2].Days)

	// synthetic dates are contiguous across subsets
	assert.Equal(t, res.Spans[0].Next, res.Spans[1].First)
	assert.Equal(t, res.Spans[1].Next, res.Spans[2].First)
	assert.Equal(t, time.Date(2021, 1, 23, 0, 0, 0, 0, time.UTC), res.Spans[2].Last)
}

func TestProcessHeaderMismatchIsWarning(t *testing.T) {
	rs := newResampler(t, model.Day, model.Ratio{1, 1, 1}, 0)
	input := "Date,Time,Open,High,Low,Close,Volume\n01/04/2021,09:30,1,1,1,1,0,0\n"

	res, _, err := run(t, rs, input)
	require.NoError(t, err)
	assert.False(t, res.HeaderMatched)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], record.ErrHeaderMismatch.Error())
}

func TestProcessByteOrderMark(t *testing.T) {
	rs := newResampler(t, model.Day, model.Ratio{1, 1, 1}, 0)
	input := "\ufeff" + header + "\n01/04/2021,09:30,1,1,1,1,0,0\n"

	res, _, err := run(t, rs, input)
	require.NoError(t, err)
	assert.True(t, res.HeaderMatched)
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		minValue float64
		want     error
	}{
		{"empty file", "", 0, aggregate.ErrEmptyInput},
		{"header only", header + "\n", 0, aggregate.ErrEmptyInput},
		{"blank lines only", header + "\n\n\r\n", 0, aggregate.ErrEmptyInput},
		{"everything filtered", header + "\n01/04/2021,09:30,0.5,1,1,1,0,0\n", 1, aggregate.ErrEmptyInput},
		{"wrong field count", header + "\n01/04/2021,09:30,1,1,1,1,0\n", 0, record.ErrMalformedRecord},
		{"bad date", header + "\n01/32/2021,09:30,1,1,1,1,0,0\n", 0, record.ErrInvalidDateTime},
		{"bad price with filter", header + "\n01/04/2021,09:30,x,1,1,1,0,0\n", 1, record.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := newResampler(t, model.Day, model.Ratio{1, 1, 1}, tt.minValue)
			_, _, err := run(t, rs, tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestProcessMalformedReportsLine(t *testing.T) {
	rs := newResampler(t, model.Day, model.Ratio{1, 1, 1}, 0)
	input := header + "\n01/04/2021,09:30,1,1,1,1,0,0\n\n01/05/2021,09:30,1,1\n"

	_, _, err := run(t, rs, input)
	var pe *record.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 4, pe.Line)
}

func TestNewRejectsBadRatio(t *testing.T) {
	_, err := New(Options{Ratio: model.Ratio{0, 0, 0}}, nil)
	assert.Error(t, err)
}

func TestProcessKeepsPayloadText(t *testing.T) {
	rs := newResampler(t, model.Day, model.Ratio{1, 1, 1}, 1.0)
	input := header + "\n" +
		`"01/04/2021","09:30","10.5","11","10.25","10.75","120","80"` + "\n" +
		"01/05/2021,09:30, 10.5,11,10.25,10.75,0,0\n"

	res, lines, err := run(t, rs, input)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, `01/04/2021,09:30,"10.5","11","10.25","10.75","120","80"`, lines[1])
	assert.Equal(t, "01/05/2021,09:30, 10.5,11,10.25,10.75,0,0", lines[2])
	assert.Equal(t, []float64{10.75}, res.Closes[model.Training])
}

func TestProcessQuotedPayloadInJSON(t *testing.T) {
	rs := newResampler(t, model.Day, model.Ratio{1, 1, 1}, 0)
	input := header + "\n" + `"01/04/2021","09:30","10.5","11","10.25","10.75","120","80"` + "\n"

	var buf bytes.Buffer
	enc, err := output.NewEncoder(output.FormatJSON, &buf, output.EncoderOptions{})
	require.NoError(t, err)
	_, err = rs.Process(strings.NewReader(input), enc)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	var rows []output.Row
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "10.5", rows[0].Open)
	assert.Equal(t, "80", rows[0].Down)
}
