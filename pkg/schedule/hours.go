// Package schedule computes escalation deadlines that respect business
// hours, so alerts issued near the end of the day do not silently expire
// overnight.
package schedule

import "time"

// Business hours are weekdays from OpeningHour (inclusive) to ClosingHour
// (exclusive) in the configured local timezone.
const (
	OpeningHour = 10
	ClosingHour = 18
)

// DuringBusinessHours reports whether t falls within business hours,
// evaluated in loc.
func DuringBusinessHours(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	wd := local.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return local.Hour() >= OpeningHour && local.Hour() < ClosingHour
}

// ExpirationTime returns start+ttl adjusted so the result always lands
// within business hours. Time past closing rolls to the next morning at
// OpeningHour, an early-morning result waits for the same day's opening,
// and weekend results advance day by day until a weekday is reached. The
// returned time satisfies DuringBusinessHours unless ttl is negative and
// start+ttl is already inside business hours.
func ExpirationTime(start time.Time, ttl time.Duration, loc *time.Location) time.Time {
	end := start.Add(ttl).In(loc)

	for !DuringBusinessHours(end, loc) {
		opening := time.Date(end.Year(), end.Month(), end.Day(), OpeningHour, 0, 0, 0, loc)
		closing := time.Date(end.Year(), end.Month(), end.Day(), ClosingHour, 0, 0, 0, loc)

		switch {
		case end.Before(opening):
			end = opening
		case !end.Before(closing):
			excess := end.Sub(closing)
			end = opening.AddDate(0, 0, 1).Add(excess)
		default:
			// Weekend daytime: same clock time on the next day.
			end = end.AddDate(0, 0, 1)
		}
	}

	return end
}
