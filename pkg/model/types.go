package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Payload field positions inside Bar.Fields
const (
	FieldOpen = iota
	FieldHigh
	FieldLow
	FieldClose
	FieldUp
	FieldDown

	PayloadFields
)

// Bar represents one timestamped price observation read from a CSV row
type Bar struct {
	Time   time.Time `json:"time"`
	Date   string    `json:"date"`   // original date field
	Clock  string    `json:"clock"`  // original time field, as read
	Fields []string  `json:"fields"` // open, high, low, close, up, down (verbatim)
}

// Field returns the payload value at position i, or "" if missing
func (b Bar) Field(i int) string {
	if i < 0 || i >= len(b.Fields) {
		return ""
	}
	return b.Fields[i]
}

// DayBucket holds all bars of one calendar day in input order
type DayBucket struct {
	Day  time.Time `json:"day"` // local midnight
	Bars []Bar     `json:"bars"`
}

// Granularity selects how day buckets are grouped into periods
type Granularity int

const (
	Day Granularity = iota
	Week
	Month
)

func (g Granularity) String() string {
	switch g {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// ParseGranularity accepts d/w/m and their long forms
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d", "day", "daily":
		return Day, nil
	case "w", "week", "weekly":
		return Week, nil
	case "m", "month", "monthly":
		return Month, nil
	default:
		return Day, fmt.Errorf("invalid interval %q: must be d, w or m", s)
	}
}

// MaxRatioPart is the largest number of periods one subset may take per cycle
const MaxRatioPart = 9

// Ratio is the number of whole periods assigned to training, validation and
// test in each cycle
type Ratio [3]int

func (r Ratio) Train() int { return r[Training] }
func (r Ratio) Valid() int { return r[Validation] }
func (r Ratio) Test() int  { return r[Test] }

// Total returns the number of periods in one full cycle
func (r Ratio) Total() int { return r[0] + r[1] + r[2] }

func (r Ratio) String() string {
	return fmt.Sprintf("%d:%d:%d", r[0], r[1], r[2])
}

// Validate checks bounds. Unless allowZero is set, only the test part may be 0.
func (r Ratio) Validate(allowZero bool) error {
	for i, n := range r {
		if n < 0 || n > MaxRatioPart {
			return fmt.Errorf("ratio %s: %s part must be between 0 and %d", r, DatasetKind(i), MaxRatioPart)
		}
	}
	if r.Total() < 1 {
		return fmt.Errorf("ratio %s: at least one part must be positive", r)
	}
	if !allowZero && (r.Train() == 0 || r.Valid() == 0) {
		return fmt.Errorf("ratio %s: only the test part may be 0", r)
	}
	return nil
}

// ParseRatio parses "train:valid:test"
func ParseRatio(s string) (Ratio, error) {
	var r Ratio
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return r, fmt.Errorf("invalid ratio %q: must specify 3 integer values (train:valid:test)", s)
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return r, fmt.Errorf("invalid ratio %q: %q is not a non-negative integer", s, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return r, fmt.Errorf("invalid ratio %q: %w", s, err)
		}
		r[i] = n
	}
	return r, nil
}

// DatasetKind identifies one of the three output subsets
type DatasetKind int

const (
	Training DatasetKind = iota
	Validation
	Test
)

// DatasetKinds lists the subsets in output order
var DatasetKinds = []DatasetKind{Training, Validation, Test}

func (k DatasetKind) String() string {
	switch k {
	case Training:
		return "training"
	case Validation:
		return "validation"
	case Test:
		return "test"
	default:
		return fmt.Sprintf("dataset(%d)", int(k))
	}
}

// Dataset is an ordered run of day buckets assigned to one subset
type Dataset struct {
	Kind DatasetKind `json:"kind"`
	Days []DayBucket `json:"days"`
}

// Rows returns the number of bars across all days
func (d Dataset) Rows() int {
	n := 0
	for _, day := range d.Days {
		n += len(day.Bars)
	}
	return n
}
