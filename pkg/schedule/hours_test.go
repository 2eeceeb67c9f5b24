package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func losAngeles(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

func TestDuringBusinessHours(t *testing.T) {
	loc := losAngeles(t)

	// Wednesday 2025-06-04.
	assert.True(t, DuringBusinessHours(time.Date(2025, 6, 4, 10, 0, 0, 0, loc), loc))
	assert.True(t, DuringBusinessHours(time.Date(2025, 6, 4, 17, 59, 0, 0, loc), loc))
	assert.False(t, DuringBusinessHours(time.Date(2025, 6, 4, 18, 0, 0, 0, loc), loc))
	assert.False(t, DuringBusinessHours(time.Date(2025, 6, 4, 9, 59, 0, 0, loc), loc))

	// Saturday midday.
	assert.False(t, DuringBusinessHours(time.Date(2025, 6, 7, 12, 0, 0, 0, loc), loc))
}

func TestDuringBusinessHoursConvertsTimezone(t *testing.T) {
	loc := losAngeles(t)

	// 01:00 UTC Thursday is 18:00 Wednesday in Los Angeles (PDT): closed.
	utc := time.Date(2025, 6, 5, 1, 0, 0, 0, time.UTC)
	assert.False(t, DuringBusinessHours(utc, loc))

	// 17:00 UTC Wednesday is 10:00 Wednesday in Los Angeles: open.
	utc = time.Date(2025, 6, 4, 17, 0, 0, 0, time.UTC)
	assert.True(t, DuringBusinessHours(utc, loc))
}

func TestExpirationTimeWithinHours(t *testing.T) {
	loc := losAngeles(t)

	start := time.Date(2025, 6, 4, 11, 0, 0, 0, loc) // Wednesday
	end := ExpirationTime(start, 2*time.Hour, loc)
	assert.Equal(t, time.Date(2025, 6, 4, 13, 0, 0, 0, loc), end)
}

func TestExpirationTimeRollsPastClosing(t *testing.T) {
	loc := losAngeles(t)

	// Wednesday 17:00 + 2h lands one hour past closing; the excess rolls to
	// Thursday 11:00.
	start := time.Date(2025, 6, 4, 17, 0, 0, 0, loc)
	end := ExpirationTime(start, 2*time.Hour, loc)
	assert.Equal(t, time.Date(2025, 6, 5, 11, 0, 0, 0, loc), end)
}

func TestExpirationTimeRollsOverWeekend(t *testing.T) {
	loc := losAngeles(t)

	// Friday 17:30 + 2h → 1.5h past Friday closing → Saturday 11:30 →
	// marched forward to Monday 11:30.
	start := time.Date(2025, 6, 6, 17, 30, 0, 0, loc)
	end := ExpirationTime(start, 2*time.Hour, loc)
	assert.Equal(t, time.Date(2025, 6, 9, 11, 30, 0, 0, loc), end)
}

func TestExpirationTimeEarlyMorningWaitsForOpening(t *testing.T) {
	loc := losAngeles(t)

	start := time.Date(2025, 6, 4, 7, 0, 0, 0, loc) // Wednesday 07:00
	end := ExpirationTime(start, 2*time.Hour, loc)
	assert.Equal(t, time.Date(2025, 6, 4, 10, 0, 0, 0, loc), end)
}

func TestExpirationTimeAlwaysBusinessHours(t *testing.T) {
	loc := losAngeles(t)

	// Sweep a week of start times against a few TTLs; every result must
	// land inside business hours.
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, loc) // Monday midnight
	ttls := []time.Duration{time.Minute, 2 * time.Hour, 21 * time.Hour}
	for day := 0; day < 7; day++ {
		for hour := 0; hour < 24; hour += 3 {
			start := base.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
			for _, ttl := range ttls {
				end := ExpirationTime(start, ttl, loc)
				assert.True(t, DuringBusinessHours(end, loc),
					"start=%v ttl=%v end=%v", start, ttl, end)
				assert.False(t, end.Before(start), "end must not precede start")
			}
		}
	}
}
