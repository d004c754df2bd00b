package medication

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed frequency: the times of day a dose falls on, and
// whether it repeats daily or weekly. An empty schedule means as-needed.
type Schedule struct {
	TimesOfDay []time.Duration
	Weekly     bool
}

// AsNeeded reports whether the frequency produces no scheduled doses.
func (s Schedule) AsNeeded() bool {
	return len(s.TimesOfDay) == 0
}

func hours(h ...int) []time.Duration {
	out := make([]time.Duration, len(h))
	for i, v := range h {
		out[i] = time.Duration(v) * time.Hour
	}
	return out
}

var namedFrequencies = map[string]Schedule{
	"od":                {TimesOfDay: hours(8)},
	"qd":                {TimesOfDay: hours(8)},
	"once daily":        {TimesOfDay: hours(8)},
	"daily":             {TimesOfDay: hours(8)},
	"bid":               {TimesOfDay: hours(8, 20)},
	"twice daily":       {TimesOfDay: hours(8, 20)},
	"tid":               {TimesOfDay: hours(8, 14, 20)},
	"three times daily": {TimesOfDay: hours(8, 14, 20)},
	"qid":               {TimesOfDay: hours(8, 12, 16, 20)},
	"four times daily":  {TimesOfDay: hours(8, 12, 16, 20)},
	"hs":                {TimesOfDay: hours(22)},
	"at bedtime":        {TimesOfDay: hours(22)},
	"weekly":            {TimesOfDay: hours(8), Weekly: true},
	"once weekly":       {TimesOfDay: hours(8), Weekly: true},
	"prn":               {},
	"as needed":         {},
	"stat":              {},
	"immediately":       {},
}

var (
	everyNHours = regexp.MustCompile(`^every\s+(\d+)\s*(?:hours?|hrs?|h)$`)
	qnh         = regexp.MustCompile(`^q\s*(\d+)\s*h$`)
)

// ParseFrequency understands the common prescription abbreviations and their
// spelled-out forms, case-insensitively. Interval frequencies are anchored at
// midnight and the interval must divide 24.
func ParseFrequency(freq string) (Schedule, error) {
	normalized := strings.Join(strings.Fields(strings.ToLower(freq)), " ")
	normalized = strings.TrimSuffix(normalized, ".")
	if normalized == "" {
		return Schedule{}, fmt.Errorf("frequency is required")
	}

	if s, ok := namedFrequencies[normalized]; ok {
		return s, nil
	}

	m := everyNHours.FindStringSubmatch(normalized)
	if m == nil {
		m = qnh.FindStringSubmatch(normalized)
	}
	if m == nil {
		return Schedule{}, fmt.Errorf("unrecognized frequency %q", freq)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 || n > 24 || 24%n != 0 {
		return Schedule{}, fmt.Errorf("interval in %q must divide 24 hours", freq)
	}
	times := make([]time.Duration, 0, 24/n)
	for h := 0; h < 24; h += n {
		times = append(times, time.Duration(h)*time.Hour)
	}
	return Schedule{TimesOfDay: times}, nil
}

// Times returns every dose time in [start, end], in start's location, ascending.
func (s Schedule) Times(start, end time.Time) []time.Time {
	if s.AsNeeded() || end.Before(start) {
		return nil
	}

	loc := start.Location()
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	step := 1
	if s.Weekly {
		step = 7
	}

	var out []time.Time
	for ; !day.After(end); day = day.AddDate(0, 0, step) {
		for _, offset := range s.TimesOfDay {
			// wall clock, so doses keep their hour across DST changes
			at := time.Date(day.Year(), day.Month(), day.Day(),
				int(offset/time.Hour), int(offset%time.Hour/time.Minute), 0, 0, loc)
			if at.Before(start) || at.After(end) {
				continue
			}
			out = append(out, at)
		}
	}
	return out
}
