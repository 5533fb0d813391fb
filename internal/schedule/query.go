package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emberhearth/scheduler/internal/model"
	"github.com/emberhearth/scheduler/internal/recurrence"
)

// Occurrence is a concrete instance of a schedule on a particular day.
type Occurrence struct {
	Schedule model.Schedule `json:"schedule"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
}

// FullDay is the default free-slot window.
var FullDay = Interval{Start: 0, End: model.MinutesPerDay}

// InRange expands every stored schedule across the days spanned by
// [start, end) and returns the occurrences overlapping the window,
// ordered by start time ascending then priority descending. With
// queryableOnly set, schedules awaiting user confirmation are dropped.
func (m *Manager) InRange(start, end time.Time, queryableOnly bool) ([]Occurrence, error) {
	if !start.Before(end) {
		return nil, nil
	}

	stored, err := m.store.List()
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}

	var occurrences []Occurrence
	for day := model.DateOnly(start); day.Before(end); day = day.AddDate(0, 0, 1) {
		for _, sched := range stored {
			if queryableOnly && !sched.IsQueryable {
				continue
			}
			if !occursOn(sched, day) {
				continue
			}
			occStart := sched.Start.On(day)
			occEnd := sched.End.On(day)
			if occStart.Before(end) && occEnd.After(start) {
				occurrences = append(occurrences, Occurrence{Schedule: sched, Start: occStart, End: occEnd})
			}
		}
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		if !occurrences[i].Start.Equal(occurrences[j].Start) {
			return occurrences[i].Start.Before(occurrences[j].Start)
		}
		return occurrences[i].Schedule.Priority > occurrences[j].Schedule.Priority
	})
	return occurrences, nil
}

// OnDate returns the day's occurrences, pending items included; the
// conflict view of a date is the same as its occupancy view.
func (m *Manager) OnDate(date time.Time) ([]Occurrence, error) {
	day := model.DateOnly(date)
	return m.InRange(day, day.AddDate(0, 0, 1), false)
}

// FreeSlots returns the gaps of a day within the given window: the
// complement of the merged occupied intervals. Free slots and occupied
// time partition the window exactly. Pending schedules count as
// occupied so generated filler cannot double-book a slot still under
// negotiation.
func (m *Manager) FreeSlots(date time.Time, window Interval) ([]Interval, error) {
	occurrences, err := m.OnDate(date)
	if err != nil {
		return nil, err
	}

	var occupied []Interval
	for _, occ := range occurrences {
		iv := Interval{Start: occ.Schedule.Start, End: occ.Schedule.End}
		if iv.Overlaps(window) {
			occupied = append(occupied, clip(iv, window))
		}
	}

	return complement(mergeIntervals(occupied), window), nil
}

// mergeIntervals coalesces overlapping and adjacent intervals. Input
// need not be sorted.
func mergeIntervals(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// complement returns the parts of window not covered by the merged,
// sorted intervals.
func complement(merged []Interval, window Interval) []Interval {
	var free []Interval
	cursor := window.Start
	for _, iv := range merged {
		if iv.Start > cursor {
			free = append(free, Interval{Start: cursor, End: iv.Start})
		}
		if iv.End > cursor {
			cursor = iv.End
		}
	}
	if cursor < window.End {
		free = append(free, Interval{Start: cursor, End: window.End})
	}
	return free
}

func clip(iv, window Interval) Interval {
	if iv.Start < window.Start {
		iv.Start = window.Start
	}
	if iv.End > window.End {
		iv.End = window.End
	}
	return iv
}

// Day-part boundaries used by DaySummary.
var dayParts = []struct {
	name       string
	start, end model.Clock
}{
	{"Night", model.NewClock(0, 0), model.NewClock(6, 0)},
	{"Morning", model.NewClock(6, 0), model.NewClock(12, 0)},
	{"Afternoon", model.NewClock(12, 0), model.NewClock(18, 0)},
	{"Evening", model.NewClock(18, 0), model.NewClock(24, 0)},
}

// DaySummary renders the day's confirmed commitments as narration text,
// bucketed into night/morning/afternoon/evening by start time. Pending
// items are omitted: they are not safe to surface until the user has
// answered.
func (m *Manager) DaySummary(date time.Time) (string, error) {
	day := model.DateOnly(date)
	occurrences, err := m.InRange(day, day.AddDate(0, 0, 1), true)
	if err != nil {
		return "", err
	}

	if len(occurrences) == 0 {
		return fmt.Sprintf("Nothing scheduled on %s.", day.Format("Monday, January 2")), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Schedule for %s:\n", day.Format("Monday, January 2"))
	for _, part := range dayParts {
		var lines []string
		for _, occ := range occurrences {
			start := occ.Schedule.Start
			if start >= part.start && start < part.end {
				lines = append(lines, summaryLine(occ.Schedule))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", part.name)
		for _, line := range lines {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func summaryLine(sched model.Schedule) string {
	line := fmt.Sprintf("%s-%s %s", sched.Start, sched.End, sched.Title)
	if sched.Location != "" {
		line += " at " + sched.Location
	}
	if sched.Kind == model.KindRecurring {
		if pattern, err := recurrence.Parse(sched.RecurrenceRule); err == nil {
			line += " (" + pattern.Describe() + ")"
		}
	}
	return line
}
