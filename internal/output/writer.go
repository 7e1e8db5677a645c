package output

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"resampler/pkg/model"
)

// DateLayout is the MM/DD/YYYY layout used for synthetic dates
const DateLayout = "01/02/2006"

// Span is the synthetic date range one dataset was written to
type Span struct {
	Kind  model.DatasetKind `json:"kind"`
	First time.Time         `json:"first"`
	Last  time.Time         `json:"last"`
	Next  time.Time         `json:"next"`
	Days  int               `json:"days"`
	Rows  int               `json:"rows"`
}

// Empty reports whether no day was written
func (s Span) Empty() bool { return s.Days == 0 }

func (s Span) String() string {
	if s.Empty() {
		return fmt.Sprintf("%s: empty", s.Kind)
	}
	return fmt.Sprintf("%s: %s to %s (%d days, %d rows)",
		s.Kind, s.First.Format(DateLayout), s.Last.Format(DateLayout), s.Days, s.Rows)
}

// WriteError wraps a failure of the output stream itself, as opposed to a
// problem with the input data
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "write output: " + e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }

// Writer re-dates day buckets onto a contiguous synthetic calendar and
// passes the rows to an encoder
type Writer struct {
	enc    Encoder
	logger *zap.Logger
}

// NewWriter creates a writer on top of enc
func NewWriter(enc Encoder, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{enc: enc, logger: logger}
}

// Write emits every bar of ds. The first bucket gets the date of start, each
// following bucket the next calendar day, whatever its original date was.
// The returned span's Next is the first unused synthetic date.
func (w *Writer) Write(ds model.Dataset, start time.Time) (Span, error) {
	span := Span{Kind: ds.Kind, Next: start}

	day := start
	for _, bucket := range ds.Days {
		date := day.Format(DateLayout)
		for _, b := range bucket.Bars {
			row := Row{
				Dataset:      ds.Kind.String(),
				Date:         date,
				Time:         b.Clock,
				Open:         b.Field(model.FieldOpen),
				High:         b.Field(model.FieldHigh),
				Low:          b.Field(model.FieldLow),
				Close:        b.Field(model.FieldClose),
				Up:           b.Field(model.FieldUp),
				Down:         b.Field(model.FieldDown),
				OriginalDate: b.Date,
			}
			if err := w.enc.Encode(row); err != nil {
				return span, &WriteError{Err: fmt.Errorf("%s row for %s: %w", ds.Kind, date, err)}
			}
			span.Rows++
		}

		if span.Days == 0 {
			span.First = day
		}
		span.Last = day
		span.Days++
		day = day.AddDate(0, 0, 1)
	}
	span.Next = day

	w.logger.Info("dataset written",
		zap.String("dataset", ds.Kind.String()),
		zap.String("range", span.String()),
	)
	return span, nil
}
