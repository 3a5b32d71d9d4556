package report

import (
	"strings"
	"time"

	"github.com/HendryAvila/pmtools/internal/task"
)

// Window presets.
const (
	WindowDaily  = "daily"
	WindowWeekly = "weekly"
	WindowCustom = "custom"
)

// Window is the time range highlights are drawn from. Status counts and
// risks ignore it; they are always a snapshot as of now.
type Window struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ResolveWindow turns a preset name or explicit bounds into a Window.
//
// name may be "daily" (default, last 24h), "weekly" (last 7 days),
// "custom" (start and end required), or a "YYYY-MM-DD:YYYY-MM-DD" range.
// Bounds accept a calendar date or RFC3339; a date-only end covers the
// whole day.
func ResolveWindow(name, start, end string, now time.Time) (Window, error) {
	now = now.UTC()
	name = strings.ToLower(strings.TrimSpace(name))

	if a, b, ok := strings.Cut(name, ":"); ok && len(a) == len(task.DateLayout) {
		name, start, end = WindowCustom, a, b
	}
	if name == "" && (start != "" || end != "") {
		name = WindowCustom
	}

	switch name {
	case "", WindowDaily:
		return Window{Name: WindowDaily, Start: now.Add(-24 * time.Hour), End: now}, nil
	case WindowWeekly:
		return Window{Name: WindowWeekly, Start: now.AddDate(0, 0, -7), End: now}, nil
	case WindowCustom:
		s, err := parseBound("start", start, false)
		if err != nil {
			return Window{}, err
		}
		e, err := parseBound("end", end, true)
		if err != nil {
			return Window{}, err
		}
		if e.Before(s) {
			return Window{}, task.Invalid("window", "end %s is before start %s", end, start)
		}
		return Window{Name: WindowCustom, Start: s, End: e}, nil
	}
	return Window{}, task.Invalid("window", "%q is not one of: daily, weekly, custom, or YYYY-MM-DD:YYYY-MM-DD", name)
}

func parseBound(field, v string, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, task.Invalid(field, "required for a custom window")
	}
	if d, err := time.Parse(task.DateLayout, v); err == nil {
		if endOfDay {
			return d.Add(24*time.Hour - time.Microsecond), nil
		}
		return d, nil
	}
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, task.Invalid(field, "%q is not a date or RFC3339 timestamp", v)
}

// Title is the report heading for the window.
func (w Window) Title() string {
	switch w.Name {
	case WindowWeekly:
		return "Weekly PM Report"
	case WindowCustom:
		return "PM Report"
	default:
		return "Daily PM Report"
	}
}

// Label is the date line shown next to the heading.
func (w Window) Label() string {
	if w.Name == WindowCustom {
		return w.Start.Format(task.DateLayout) + " to " + w.End.Format(task.DateLayout)
	}
	return w.End.Format(task.DateLayout)
}
