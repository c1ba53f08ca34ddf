package availability

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var dayNames = [7]string{
	time.Sunday:    "Domingo",
	time.Monday:    "Segunda-feira",
	time.Tuesday:   "Terça-feira",
	time.Wednesday: "Quarta-feira",
	time.Thursday:  "Quinta-feira",
	time.Friday:    "Sexta-feira",
	time.Saturday:  "Sábado",
}

// dayAliases holds folded names matched against the text before a line's first colon.
var dayAliases = func() [7][]string {
	var out [7][]string
	for wd, name := range dayNames {
		out[wd] = []string{fold(name), strings.ToLower(time.Weekday(wd).String())}
	}
	return out
}()

var (
	breakKeywords  = []string{"pausa", "intervalo", "almoco"}
	closedKeywords = []string{"fechado", "closed"}
	rangePattern   = regexp.MustCompile(`(\d{1,2}:\d{2})\s*(?:-|–|—|as|a|ate|to)\s*(\d{1,2}:\d{2})`)
)

// minFuzzyLen keeps fragments such as "s" or "qu" from matching several days.
const minFuzzyLen = 3

// DayName returns the display name used when formatting schedules.
func DayName(wd time.Weekday) string {
	return dayNames[wd]
}

// ParseSchedule turns free-text opening hours into a WeeklySchedule. It never fails:
// malformed lines are skipped and input with no usable day yields DefaultWeeklySchedule.
//
// Accepted form, one open day per line:
//
//	Segunda-feira: 09:00 - 18:00
//	  Pausa: 12:00 - 13:00
//	Domingo: Fechado
func ParseSchedule(text string) WeeklySchedule {
	w, _ := ParseScheduleReport(text)
	return w
}

// ParseScheduleReport is ParseSchedule plus the anomalies it absorbed. Each issue wraps
// ErrInvalidSchedule.
func ParseScheduleReport(text string) (WeeklySchedule, []error) {
	week := closedWeek()
	var (
		issues []error
		parsed bool
		last   = -1
	)
	issue := func(n int, format string, args ...any) {
		issues = append(issues, fmt.Errorf("%w: line %d: %s", ErrInvalidSchedule, n+1, fmt.Sprintf(format, args...)))
	}

	for n, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := fold(raw)
		if line == "" {
			continue
		}
		head, rest, hasColon := strings.Cut(line, ":")
		head = strings.TrimSpace(head)

		if containsAny(head, breakKeywords) {
			if last < 0 {
				issue(n, "break without an open day before it")
				continue
			}
			ranges := findRanges(line)
			if len(ranges) == 0 {
				issue(n, "break has no HH:MM - HH:MM range")
				continue
			}
			if err := applyBreak(&week[last], ranges[0]); err != nil {
				issue(n, "%v", err)
			}
			continue
		}

		if !hasColon {
			issue(n, "no day name before ':'")
			continue
		}
		wd, ok := matchDay(head)
		if !ok {
			issue(n, "unknown day %q", head)
			last = -1
			continue
		}
		if containsAny(rest, closedKeywords) {
			week[wd] = ClosedDay()
			parsed = true
			last = -1
			continue
		}

		ranges := findRanges(rest)
		if len(ranges) == 0 {
			issue(n, "%s has no HH:MM - HH:MM range", DayName(wd))
			last = -1
			continue
		}
		hours := ranges[0]
		if hours.Start >= hours.End {
			issue(n, "%s opens at %s but closes at %s", DayName(wd), hours.Start, hours.End)
			last = -1
			continue
		}
		day := OpenDay(hours.Start, hours.End)
		if len(ranges) > 1 && containsAny(rest, breakKeywords) {
			if err := applyBreak(&day, ranges[1]); err != nil {
				issue(n, "%v", err)
			}
		}
		week[wd] = day
		parsed = true
		last = int(wd)
	}

	if !parsed {
		if strings.TrimSpace(text) != "" {
			issues = append(issues, fmt.Errorf("%w: no day could be read, using defaults", ErrInvalidSchedule))
		}
		return DefaultWeeklySchedule(), issues
	}
	return week, issues
}

// applyBreak sets the break even when it falls outside the open hours; such a break is reported
// so callers can reject it, but the slot generator tolerates it.
func applyBreak(d *DaySchedule, brk Interval) error {
	if brk.Start >= brk.End {
		return fmt.Errorf("break %s-%s is empty", brk.Start, brk.End)
	}
	*d = d.WithBreak(brk.Start, brk.End)
	if brk.Start < d.Start || brk.End > d.End {
		return fmt.Errorf("break %s-%s outside hours %s-%s", brk.Start, brk.End, d.Start, d.End)
	}
	return nil
}

func matchDay(candidate string) (time.Weekday, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return 0, false
	}
	for wd, aliases := range dayAliases {
		for _, a := range aliases {
			if a == candidate {
				return time.Weekday(wd), true
			}
		}
	}
	if len([]rune(candidate)) < minFuzzyLen {
		return 0, false
	}

	match := -1
	for wd, aliases := range dayAliases {
		for _, a := range aliases {
			if strings.Contains(a, candidate) || strings.Contains(candidate, a) {
				if match >= 0 && match != wd {
					// ambiguous, e.g. "feira"
					return 0, false
				}
				match = wd
			}
		}
	}
	if match < 0 {
		return 0, false
	}
	return time.Weekday(match), true
}

func findRanges(s string) []Interval {
	var out []Interval
	for _, m := range rangePattern.FindAllStringSubmatch(s, -1) {
		start, err := ParseClock(m[1])
		if err != nil {
			continue
		}
		end, err := ParseClock(m[2])
		if err != nil {
			continue
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// fold lower-cases s and strips diacritics so "Terça" and "terca" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
