package aggregate

import (
	"slices"
	"time"

	"resampler/pkg/model"
)

// DayMap is an ordered collection of day buckets keyed by local midnight.
// Buckets leave the map only through Drain, which hands each of them out once.
type DayMap struct {
	days []model.DayBucket
}

// Len returns the number of buckets
func (m *DayMap) Len() int { return len(m.days) }

// Rows returns the number of bars across all buckets
func (m *DayMap) Rows() int {
	n := 0
	for _, d := range m.days {
		n += len(d.Bars)
	}
	return n
}

// First returns the earliest day key
func (m *DayMap) First() (time.Time, bool) {
	if len(m.days) == 0 {
		return time.Time{}, false
	}
	return m.days[0].Day, true
}

// insert adds b in key order. It returns false if the day is already present.
func (m *DayMap) insert(b model.DayBucket) bool {
	// input is expected to be chronological, so appending is the common case
	if n := len(m.days); n == 0 || m.days[n-1].Day.Before(b.Day) {
		m.days = append(m.days, b)
		return true
	}
	i, found := m.search(b.Day)
	if found {
		return false
	}
	m.days = slices.Insert(m.days, i, b)
	return true
}

func (m *DayMap) search(day time.Time) (int, bool) {
	return slices.BinarySearchFunc(m.days, day, func(b model.DayBucket, t time.Time) int {
		return b.Day.Compare(t)
	})
}

// Drain moves every bucket into a cursor and leaves the map empty
func (m *DayMap) Drain() *Cursor {
	c := &Cursor{days: m.days}
	m.days = nil
	return c
}

// Cursor yields drained buckets in chronological order, each exactly once
type Cursor struct {
	days []model.DayBucket
	pos  int
}

// Peek returns the next bucket without consuming it
func (c *Cursor) Peek() (model.DayBucket, bool) {
	if c.pos >= len(c.days) {
		return model.DayBucket{}, false
	}
	return c.days[c.pos], true
}

// Next consumes and returns the next bucket
func (c *Cursor) Next() (model.DayBucket, bool) {
	b, ok := c.Peek()
	if !ok {
		return b, false
	}
	c.days[c.pos] = model.DayBucket{}
	c.pos++
	return b, true
}

// Done reports whether every bucket has been consumed
func (c *Cursor) Done() bool { return c.pos >= len(c.days) }
