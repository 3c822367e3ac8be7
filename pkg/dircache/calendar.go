package dircache

import "time"

// Calendar fixes the conventions used to decide whether two instants fall in
// the same week or on the same day. Both comparisons happen in Location.
type Calendar struct {
	WeekStart time.Weekday
	Location  *time.Location
}

// DefaultCalendar uses Monday as the first day of the week, in UTC.
func DefaultCalendar() Calendar {
	return Calendar{WeekStart: time.Monday, Location: time.UTC}
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// startOfDay truncates t to midnight in the calendar location.
func (c Calendar) startOfDay(t time.Time) time.Time {
	t = t.In(c.loc())
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc())
}

// StartOfWeek returns midnight of the first day of the week containing t.
func (c Calendar) StartOfWeek(t time.Time) time.Time {
	day := c.startOfDay(t)
	back := (int(day.Weekday()) - int(c.WeekStart) + 7) % 7
	return day.AddDate(0, 0, -back)
}

// SameWeek reports whether a and b fall in the same calendar week and the
// same calendar year. A week straddling New Year is split by the year check.
func (c Calendar) SameWeek(a, b time.Time) bool {
	if a.In(c.loc()).Year() != b.In(c.loc()).Year() {
		return false
	}
	return c.StartOfWeek(a).Equal(c.StartOfWeek(b))
}

// SameDay reports whether a and b fall on the same calendar day.
func (c Calendar) SameDay(a, b time.Time) bool {
	return c.startOfDay(a).Equal(c.startOfDay(b))
}
