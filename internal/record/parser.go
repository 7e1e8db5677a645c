package record

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"resampler/pkg/model"
)

var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrInvalidDateTime = errors.New("invalid date or time")
	ErrInvalidValue    = errors.New("invalid price value")
	ErrHeaderMismatch  = errors.New("unexpected header")
)

// FieldCount is the number of comma separated fields in every data row
const FieldCount = 8

const dateTimeLayout = "1/2/2006 15:04:05"

// Header is the expected first line of an input file, without quotes
var Header = []string{"Date", "Time", "Open", "High", "Low", "Close", "Up", "Down"}

// ParseError reports the input line that failed to parse
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser turns raw CSV lines into bars. Timestamps are interpreted in loc.
type Parser struct {
	loc *time.Location
}

// NewParser creates a parser; a nil location means time.Local
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{loc: loc}
}

// ParseLine parses one data row. lineNo is only used for error reporting.
func (p *Parser) ParseLine(line string, lineNo int) (model.Bar, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, ",")
	if len(fields) != FieldCount {
		return model.Bar{}, &ParseError{
			Line: lineNo,
			Text: line,
			Err:  fmt.Errorf("%w: want %d fields, got %d", ErrMalformedRecord, FieldCount, len(fields)),
		}
	}

	date := Unquote(fields[0])
	clock := Unquote(fields[1])
	t, err := p.parseTime(date, clock)
	if err != nil {
		return model.Bar{}, &ParseError{Line: lineNo, Text: line, Err: err}
	}

	// payload text is kept as read, quotes included
	payload := make([]string, model.PayloadFields)
	copy(payload, fields[2:])

	return model.Bar{
		Time:   t,
		Date:   date,
		Clock:  clock,
		Fields: payload,
	}, nil
}

func (p *Parser) parseTime(date, clock string) (time.Time, error) {
	// HH:MM gets :00 seconds
	normalized := clock
	if len(normalized) == 5 {
		normalized += ":00"
	}

	// Parse in UTC first so field ranges are checked without zone effects
	cal, err := time.Parse(dateTimeLayout, date+" "+normalized)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDateTime, err)
	}

	t := time.Date(cal.Year(), cal.Month(), cal.Day(), cal.Hour(), cal.Minute(), cal.Second(), 0, p.loc)
	if t.Day() != cal.Day() || t.Hour() != cal.Hour() || t.Minute() != cal.Minute() {
		return time.Time{}, fmt.Errorf("%w: %s %s does not exist in %s", ErrInvalidDateTime, date, clock, p.loc)
	}
	return t, nil
}

// CheckHeader reports ErrHeaderMismatch when line is not the expected header.
// Quoted and unquoted column names are both accepted.
func CheckHeader(line string) error {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, ",")
	if len(fields) != len(Header) {
		return fmt.Errorf("%w: %q", ErrHeaderMismatch, line)
	}
	for i, f := range fields {
		if !strings.EqualFold(Unquote(f), Header[i]) {
			return fmt.Errorf("%w: %q", ErrHeaderMismatch, line)
		}
	}
	return nil
}

// Prices returns open, high, low and close as exact decimals
func Prices(b model.Bar) ([4]decimal.Decimal, error) {
	var out [4]decimal.Decimal
	for i := model.FieldOpen; i <= model.FieldClose; i++ {
		d, err := decimal.NewFromString(Unquote(b.Field(i)))
		if err != nil {
			return out, fmt.Errorf("%w: %q", ErrInvalidValue, b.Field(i))
		}
		out[i] = d
	}
	return out, nil
}

// Unquote strips surrounding blanks and double quotes from a field
func Unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
