package partition

import (
	"fmt"
	"time"

	"resampler/internal/aggregate"
	"resampler/internal/period"
	"resampler/pkg/model"
)

// Result holds the three subsets in output order
type Result struct {
	Datasets [3]model.Dataset
}

// Get returns the subset of the given kind
func (r *Result) Get(kind model.DatasetKind) model.Dataset {
	return r.Datasets[kind]
}

// Days returns the number of buckets assigned across all subsets
func (r *Result) Days() int {
	n := 0
	for _, ds := range r.Datasets {
		n += len(ds.Days)
	}
	return n
}

// Partitioner assigns whole periods of day buckets to training, validation
// and test in a repeating cycle given by the ratio
type Partitioner struct {
	granularity model.Granularity
	ratio       model.Ratio
}

// New creates a partitioner. Zero parts are allowed; an all-zero ratio is not.
func New(g model.Granularity, r model.Ratio) (*Partitioner, error) {
	if err := r.Validate(true); err != nil {
		return nil, err
	}
	return &Partitioner{granularity: g, ratio: r}, nil
}

// state is the position of the assignment cycle
type state struct {
	kind   model.DatasetKind // subset receiving periods
	quota  int               // periods it may still take in this cycle
	period int64             // relative period to consume next
}

func (s *state) nextDataset(r model.Ratio) {
	s.kind = (s.kind + 1) % model.DatasetKind(len(r))
	s.quota = r[s.kind]
}

// Split drains days and assigns every bucket to exactly one subset. It stops
// as soon as the buckets run out, even in the middle of a cycle.
func (p *Partitioner) Split(days *aggregate.DayMap) *Result {
	res := &Result{}
	for _, k := range model.DatasetKinds {
		res.Datasets[k].Kind = k
	}

	cur := days.Drain()
	first, ok := cur.Peek()
	if !ok {
		return res
	}
	periodOf := p.periodFunc(first.Day)

	st := state{kind: model.Training, quota: p.ratio[model.Training]}
	ordinal := 0
	for !cur.Done() {
		if st.quota == 0 {
			st.nextDataset(p.ratio)
			continue
		}

		ds := &res.Datasets[st.kind]
		for {
			b, ok := cur.Peek()
			if !ok || periodOf(ordinal, b.Day) > st.period {
				break
			}
			cur.Next()
			ds.Days = append(ds.Days, b)
			ordinal++
		}
		st.period++
		st.quota--
	}
	return res
}

// periodFunc returns the relative period of the bucket at position ordinal.
// For days every retained bucket is its own period; weeks and months follow
// the calendar, so a period with no retained days still uses up its slot.
func (p *Partitioner) periodFunc(start time.Time) func(ordinal int, day time.Time) int64 {
	if p.granularity == model.Day {
		return func(ordinal int, _ time.Time) int64 { return int64(ordinal) }
	}
	startIndex := period.Index(p.granularity, start)
	return func(_ int, day time.Time) int64 {
		return period.Relative(p.granularity, startIndex, day)
	}
}

func (p *Partitioner) String() string {
	return fmt.Sprintf("%s %s", p.granularity, p.ratio)
}
