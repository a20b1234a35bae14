package recurrence

import (
	"fmt"
	"sort"
	"time"
)

// DefaultBudget caps the number of cursor steps taken for one schedule.
const DefaultBudget = 600

// Expander turns schedules into occurrences inside a closed window.
// Budget bounds the number of cursor advances per schedule; zero or less
// means DefaultBudget.
type Expander struct {
	Budget int
}

func Expand(s *Schedule, from, to time.Time) []Occurrence {
	return Expander{}.Expand(s, from, to)
}

// ExpandAll expands every schedule and merges the result in start order.
func ExpandAll(schedules []Schedule, from, to time.Time) []Occurrence {
	return Expander{}.ExpandAll(schedules, from, to)
}

func (e Expander) ExpandAll(schedules []Schedule, from, to time.Time) []Occurrence {
	var out []Occurrence
	for i := range schedules {
		out = append(out, e.Expand(&schedules[i], from, to)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].At.Before(out[j].At)
	})
	return out
}

// Expand returns the occurrences of s within [from, to], sorted ascending.
// Malformed rules never fail; they produce a bounded, possibly empty result.
func (e Expander) Expand(s *Schedule, from, to time.Time) []Occurrence {
	if s == nil || s.Start.IsZero() || to.Before(from) {
		return nil
	}
	x := expansion{
		s:      s,
		from:   from,
		to:     to,
		budget: e.Budget,
	}
	if x.budget <= 0 {
		x.budget = DefaultBudget
	}
	x.until, x.bounded = s.Rule.UntilBound()

	switch s.Rule.Type {
	case Daily:
		x.daily()
	case Weekly:
		x.weekly()
	case Monthly:
		x.monthly()
	default:
		if x.within(s.Start) {
			x.emit(s.Start)
		}
	}

	sort.SliceStable(x.out, func(i, j int) bool {
		return x.out[i].At.Before(x.out[j].At)
	})
	return x.out
}

type expansion struct {
	s        *Schedule
	from, to time.Time
	until    time.Time
	bounded  bool
	budget   int
	out      []Occurrence
}

func (x *expansion) daily() {
	step := x.s.Rule.Step()
	for i := 0; i < x.budget; i++ {
		cur := x.s.Start.AddDate(0, 0, i*step)
		if x.done(cur) {
			return
		}
		if x.within(cur) {
			x.emit(cur)
		}
	}
}

func (x *expansion) weekly() {
	step := x.s.Rule.Step()
	days := x.s.Rule.Days(x.s.Start)
	// anchor is the Sunday of the start week, at the start's clock time
	anchor := x.s.Start.AddDate(0, 0, -int(x.s.Start.Weekday()))
	for i := 0; i < x.budget; i++ {
		week := anchor.AddDate(0, 0, 7*step*i)
		if x.done(week) {
			return
		}
		for _, wd := range days {
			cur := week.AddDate(0, 0, int(wd))
			if cur.Before(x.s.Start) || x.pastUntil(cur) || !x.within(cur) {
				continue
			}
			x.emit(cur)
		}
	}
}

func (x *expansion) monthly() {
	step := x.s.Rule.Step()
	for i := 0; i < x.budget; i++ {
		cur := AddMonths(x.s.Start, i*step)
		if x.done(cur) {
			return
		}
		if x.within(cur) {
			x.emit(cur)
		}
	}
}

func (x *expansion) done(cur time.Time) bool {
	return cur.After(x.to) || x.pastUntil(cur)
}

func (x *expansion) pastUntil(t time.Time) bool {
	return x.bounded && !t.Before(x.until)
}

func (x *expansion) within(t time.Time) bool {
	return !t.Before(x.from) && !t.After(x.to)
}

func (x *expansion) emit(at time.Time) {
	occ := Occurrence{
		Key:      fmt.Sprintf("%s-%d-%d", x.s.ID, at.UnixMilli(), len(x.out)),
		At:       at,
		Schedule: x.s,
	}
	if d := x.s.Duration(); d > 0 {
		occ.End = at.Add(d)
	}
	x.out = append(x.out, occ)
}

// AddMonths adds n calendar months to t, clamping the day of month to the
// last day of the target month. The clock time and location are kept.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
