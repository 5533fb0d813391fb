package schedule

import (
	"log/slog"
	"sort"
	"time"

	"github.com/emberhearth/scheduler/internal/model"
	"github.com/emberhearth/scheduler/internal/recurrence"
)

// Interval is a half-open [Start, End) clock interval within one day.
// Back-to-back intervals (End == other.Start) do not overlap.
type Interval struct {
	Start model.Clock `json:"start"`
	End   model.Clock `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	return i.End > o.Start && i.Start < o.End
}

// occursOn reports whether a stored schedule has an occurrence on date.
// Recurring templates are evaluated against their pattern; the others
// fire only on their stored date. Declined schedules never occur.
func occursOn(sched model.Schedule, date time.Time) bool {
	if sched.Collaboration == model.CollaborationDeclined {
		return false
	}

	if sched.Kind != model.KindRecurring {
		return sameDate(sched.Date, date)
	}

	pattern, err := recurrence.Parse(sched.RecurrenceRule)
	if err != nil {
		// A corrupt rule should not block unrelated schedules.
		slog.Error("invalid recurrence rule", "schedule_id", sched.ID, "rule", sched.RecurrenceRule, "error", err)
		return false
	}
	return pattern.AppliesTo(sched.Anchor, sched.RecurrenceEnd, date)
}

// findConflicts returns the stored schedules that occur on date, overlap
// the candidate interval, and have priority >= floor (floor 0 means
// any). excludeID skips the schedule being updated. Results are ordered
// by start time ascending, ties broken by priority descending.
func findConflicts(stored []model.Schedule, candidate Interval, date time.Time, floor model.Priority, excludeID string) []model.Schedule {
	var conflicts []model.Schedule
	for _, sched := range stored {
		if sched.ID == excludeID {
			continue
		}
		if sched.Priority < floor {
			continue
		}
		if !occursOn(sched, date) {
			continue
		}
		if !candidate.Overlaps(Interval{Start: sched.Start, End: sched.End}) {
			continue
		}
		conflicts = append(conflicts, sched)
	}

	sortConflicts(conflicts)
	return conflicts
}

// findConflictsOnDates unions conflicts across the given dates. A stored
// schedule clashing on several dates appears once.
func findConflictsOnDates(stored []model.Schedule, candidate Interval, dates []time.Time, floor model.Priority, excludeID string) []model.Schedule {
	seen := make(map[string]bool)
	var conflicts []model.Schedule
	for _, date := range dates {
		for _, c := range findConflicts(stored, candidate, date, floor, excludeID) {
			if !seen[c.ID] {
				seen[c.ID] = true
				conflicts = append(conflicts, c)
			}
		}
	}
	sortConflicts(conflicts)
	return conflicts
}

// sortConflicts orders by start time ascending, ties broken by priority
// descending.
func sortConflicts(conflicts []model.Schedule) {
	sort.SliceStable(conflicts, func(i, j int) bool {
		if conflicts[i].Start != conflicts[j].Start {
			return conflicts[i].Start < conflicts[j].Start
		}
		return conflicts[i].Priority > conflicts[j].Priority
	})
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
