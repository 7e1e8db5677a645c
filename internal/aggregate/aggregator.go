package aggregate

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"resampler/pkg/model"
)

var (
	ErrEmptyInput         = errors.New("no data")
	ErrDuplicateDay       = errors.New("duplicate day")
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
)

// Stats counts what the aggregator kept and dropped
type Stats struct {
	Bars                int `json:"bars"`
	Days                int `json:"days"`
	FilteredDays        int `json:"filtered_days"`
	FilteredBars        int `json:"filtered_bars"`
	DuplicateDays       int `json:"duplicate_days"`
	DuplicateTimestamps int `json:"duplicate_timestamps"`
	DroppedBars         int `json:"dropped_bars"`
}

// Aggregator groups consecutive bars of the same calendar day into buckets.
// Bars must arrive in file order; a day that reappears after another day has
// started is dropped as a duplicate.
type Aggregator struct {
	filter Filter
	logger *zap.Logger

	days     DayMap
	seen     map[int64]struct{}
	cur      model.DayBucket
	stamps   map[int64]struct{}
	open     bool
	dup      bool
	rejected bool

	stats    Stats
	warnings []error
}

// NewAggregator creates an aggregator. filter may be nil.
func NewAggregator(filter Filter, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		filter: filter,
		logger: logger,
		seen:   make(map[int64]struct{}),
		stamps: make(map[int64]struct{}),
	}
}

// Add feeds one bar. The only error is a filter failure, which is fatal to the file.
func (a *Aggregator) Add(b model.Bar) error {
	a.stats.Bars++

	day := StartOfDay(b.Time)
	if a.open && !a.cur.Day.Equal(day) {
		a.seal()
	}
	if !a.open {
		a.start(day)
	}

	switch {
	case a.dup:
		a.stats.DroppedBars++
		return nil
	case a.rejected:
		a.stats.FilteredBars++
		return nil
	}

	if a.filter != nil {
		reject, err := a.filter.Reject(b)
		if err != nil {
			return err
		}
		if reject {
			// the whole day goes, including bars already buffered
			a.rejected = true
			a.stats.FilteredDays++
			a.stats.FilteredBars += len(a.cur.Bars) + 1
			a.logger.Debug("day filtered by minimum value",
				zap.String("day", day.Format("2006-01-02")),
				zap.Int("buffered_bars", len(a.cur.Bars)),
			)
			a.cur.Bars = nil
			return nil
		}
	}

	if _, ok := a.stamps[b.Time.UnixNano()]; ok {
		a.stats.DuplicateTimestamps++
		a.stats.DroppedBars++
		a.warn(fmt.Errorf("%s %s: %w", b.Date, b.Clock, ErrDuplicateTimestamp))
		return nil
	}
	a.stamps[b.Time.UnixNano()] = struct{}{}
	a.cur.Bars = append(a.cur.Bars, b)
	return nil
}

// Finish seals the last day and returns the collected buckets
func (a *Aggregator) Finish() (*DayMap, error) {
	if a.open {
		a.seal()
	}
	a.stats.Days = a.days.Len()
	if a.days.Len() == 0 {
		return nil, fmt.Errorf("%w: no days left after parsing and filtering", ErrEmptyInput)
	}
	days := a.days
	a.days = DayMap{}
	return &days, nil
}

// Stats returns the running counters
func (a *Aggregator) Stats() Stats { return a.stats }

// Warnings returns recoverable problems seen so far
func (a *Aggregator) Warnings() []error { return a.warnings }

func (a *Aggregator) start(day time.Time) {
	a.open = true
	a.cur = model.DayBucket{Day: day}
	a.rejected = false
	a.dup = false
	clear(a.stamps)

	if _, ok := a.seen[day.Unix()]; ok {
		a.dup = true
		a.stats.DuplicateDays++
		a.warn(fmt.Errorf("%s: %w", day.Format("01/02/2006"), ErrDuplicateDay))
		return
	}
	a.seen[day.Unix()] = struct{}{}
}

func (a *Aggregator) seal() {
	a.open = false
	if a.dup || a.rejected || len(a.cur.Bars) == 0 {
		return
	}
	a.days.insert(a.cur)
	a.cur = model.DayBucket{}
}

func (a *Aggregator) warn(err error) {
	a.warnings = append(a.warnings, err)
	a.logger.Warn("record dropped", zap.Error(err))
}

// StartOfDay returns midnight of t's calendar day in t's location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
