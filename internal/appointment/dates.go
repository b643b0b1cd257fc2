package appointment

import "time"

// DayKey formats the civil date of t in its own location.
func DayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// StartOfDay returns midnight of t's civil date, in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// AtDate returns midnight in loc of the civil date carried by d,
// ignoring d's own location. Useful for DATE columns scanned as UTC.
func AtDate(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}

// CivilDate normalizes t to UTC midnight of its civil date in loc,
// the form DATE columns round-trip through.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string as midnight in loc.
func ParseDay(raw string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, raw, loc)
}

// MonthRange returns [first day of month, first day of next month) in loc.
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}
