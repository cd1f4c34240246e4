// CLAUDE:SUMMARY Restricted cron parser (minute + hour fields, ALWAYS keyword) used to decide which sites are due.
package schedule

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// Always is the schedule keyword that makes a site due on every poll.
const Always = "ALWAYS"

// Set is a bitset of field values (0..63).
type Set uint64

// Has reports whether v is in the set.
func (s Set) Has(v int) bool { return v >= 0 && v < 64 && s&(1<<uint(v)) != 0 }

// Values lists the members in ascending order.
func (s Set) Values() []int {
	out := make([]int, 0, bits.OnesCount64(uint64(s)))
	for v := range 64 {
		if s.Has(v) {
			out = append(out, v)
		}
	}
	return out
}

// Expr is a parsed schedule. Only the minute and hour fields are evaluated;
// day-of-month, month and day-of-week are accepted and ignored.
type Expr struct {
	Always  bool
	Minutes Set
	Hours   Set
}

// Matches reports whether t (taken in UTC) falls on a scheduled minute.
func (e *Expr) Matches(t time.Time) bool {
	if e.Always {
		return true
	}
	t = t.UTC()
	return e.Minutes.Has(t.Minute()) && e.Hours.Has(t.Hour())
}

// Parse reads "ALWAYS" (any case) or a cron expression of at least five
// whitespace-separated fields. Each of the minute and hour fields is a
// comma list of "*", "n", "a-b", or any of those followed by "/step".
// A bare "n/step" means n through the field maximum.
func Parse(expr string) (*Expr, error) {
	expr = strings.TrimSpace(expr)
	if strings.EqualFold(expr, Always) {
		return &Expr{Always: true}, nil
	}
	fields := strings.Fields(expr)
	if len(fields) < 5 {
		return nil, fmt.Errorf("schedule: %q: want at least 5 fields, got %d", expr, len(fields))
	}
	minutes, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("schedule: %q: minute: %w", expr, err)
	}
	hours, err := parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("schedule: %q: hour: %w", expr, err)
	}
	return &Expr{Minutes: minutes, Hours: hours}, nil
}

func parseField(field string, min, max int) (Set, error) {
	var s Set
	for part := range strings.SplitSeq(field, ",") {
		if part == "" {
			return 0, fmt.Errorf("empty list item in %q", field)
		}
		base, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil {
				return 0, fmt.Errorf("bad step %q", stepStr)
			}
			if n <= 0 {
				return 0, fmt.Errorf("step %d must be positive", n)
			}
			step = n
		}

		var lo, hi int
		switch {
		case base == "*":
			lo, hi = min, max
		case strings.Contains(base, "-"):
			a, b, _ := strings.Cut(base, "-")
			var err error
			if lo, err = atoiRange(a, min, max); err != nil {
				return 0, err
			}
			if hi, err = atoiRange(b, min, max); err != nil {
				return 0, err
			}
			if lo > hi {
				return 0, fmt.Errorf("range %q is reversed", base)
			}
		default:
			v, err := atoiRange(base, min, max)
			if err != nil {
				return 0, err
			}
			lo, hi = v, v
			if hasStep {
				hi = max
			}
		}

		for v := lo; v <= hi; v += step {
			s |= 1 << uint(v)
		}
	}
	if s == 0 {
		return 0, fmt.Errorf("%q selects nothing", field)
	}
	return s, nil
}

func atoiRange(s string, min, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("value %d out of range %d-%d", v, min, max)
	}
	return v, nil
}
