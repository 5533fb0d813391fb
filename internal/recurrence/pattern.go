package recurrence

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the recurrence frequency of a schedule template.
type Kind int

const (
	Daily Kind = iota
	Weekly
	Weekdays
	Weekends
	Monthly
	Custom
)

var kindNames = map[Kind]string{
	Daily:    "DAILY",
	Weekly:   "WEEKLY",
	Weekdays: "WEEKDAYS",
	Weekends: "WEEKENDS",
	Monthly:  "MONTHLY",
	Custom:   "CUSTOM",
}

var kindFromName = map[string]Kind{
	"DAILY":    Daily,
	"WEEKLY":   Weekly,
	"WEEKDAYS": Weekdays,
	"WEEKENDS": Weekends,
	"MONTHLY":  Monthly,
	"CUSTOM":   Custom,
}

var dayNames = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var dayAbbrev = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// Pattern is a recurrence rule. Weekly fires on the anchor's weekday;
// Custom fires on an explicit weekday set; Monthly fires on the anchor's
// day of month and therefore never fires in months that lack that day
// (day 31 skips 30-day months, no clamping).
type Pattern struct {
	Kind Kind
	Days []time.Weekday // Custom only; sorted Sunday-first
}

// Parse parses a pattern string like "WEEKDAYS" or "CUSTOM:MO,WE,FR".
func Parse(rule string) (Pattern, error) {
	if rule == "" {
		return Pattern{}, fmt.Errorf("empty pattern")
	}

	name, arg, hasArg := strings.Cut(rule, ":")
	kind, ok := kindFromName[name]
	if !ok {
		return Pattern{}, fmt.Errorf("unknown pattern: %q", name)
	}

	if kind != Custom {
		if hasArg {
			return Pattern{}, fmt.Errorf("pattern %s takes no weekday list", name)
		}
		return Pattern{Kind: kind}, nil
	}

	if !hasArg || arg == "" {
		return Pattern{}, fmt.Errorf("CUSTOM requires a weekday list")
	}

	seen := make(map[time.Weekday]bool)
	var days []time.Weekday
	for _, d := range strings.Split(arg, ",") {
		wd, ok := dayNames[strings.TrimSpace(d)]
		if !ok {
			return Pattern{}, fmt.Errorf("unknown day: %q", d)
		}
		if !seen[wd] {
			seen[wd] = true
			days = append(days, wd)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return Pattern{Kind: Custom, Days: days}, nil
}

// String serializes the pattern back to its storage form.
func (p Pattern) String() string {
	if p.Kind != Custom {
		return kindNames[p.Kind]
	}
	var days []string
	for _, d := range p.Days {
		days = append(days, dayAbbrev[d])
	}
	return "CUSTOM:" + strings.Join(days, ",")
}

// AppliesTo reports whether the pattern fires on date, given the
// template's anchor date and optional inclusive end date. Dates before
// the anchor never fire.
func (p Pattern) AppliesTo(anchor time.Time, until *time.Time, date time.Time) bool {
	day := dateOnly(date)
	if day.Before(dateOnly(anchor)) {
		return false
	}
	if until != nil && day.After(dateOnly(*until)) {
		return false
	}

	switch p.Kind {
	case Daily:
		return true
	case Weekly:
		return day.Weekday() == anchor.Weekday()
	case Weekdays:
		wd := day.Weekday()
		return wd >= time.Monday && wd <= time.Friday
	case Weekends:
		wd := day.Weekday()
		return wd == time.Saturday || wd == time.Sunday
	case Monthly:
		return day.Day() == anchor.Day()
	case Custom:
		for _, d := range p.Days {
			if day.Weekday() == d {
				return true
			}
		}
		return false
	}
	return false
}

// Describe returns a human-readable description of the pattern, used in
// day-summary narration.
func (p Pattern) Describe() string {
	switch p.Kind {
	case Daily:
		return "every day"
	case Weekly:
		return "weekly"
	case Weekdays:
		return "on weekdays"
	case Weekends:
		return "on weekends"
	case Monthly:
		return "monthly"
	case Custom:
		var names []string
		for _, d := range p.Days {
			names = append(names, d.String()[:3])
		}
		return "on " + strings.Join(names, ", ")
	}
	return ""
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
