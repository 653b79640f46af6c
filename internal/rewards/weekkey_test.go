package rewards

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func pt(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(ReferenceTimezone)
	assert.NoError(t, err)
	return loc
}

func TestWeekOf(t *testing.T) {
	loc := pt(t)

	t.Run("midweek", func(t *testing.T) {
		// Wednesday Sep 2 2026 belongs to the week ending Sunday Sep 6.
		week := WeekOf(time.Date(2026, 9, 2, 15, 0, 0, 0, loc))
		assert.Equal(t, "2026-09-06", week.WeekKey)
		assert.Equal(t, "2026-08-31", week.MondayKey)
		assert.Equal(t, "2026-09-13", week.NextWeekKey)
		assert.Equal(t, time.Date(2026, 9, 6, 23, 59, 0, 0, loc), week.ClosesAt)
	})

	t.Run("monday starts a new week", func(t *testing.T) {
		week := WeekOf(time.Date(2026, 9, 7, 0, 0, 0, 0, loc))
		assert.Equal(t, "2026-09-13", week.WeekKey)
	})

	t.Run("sunday still belongs to the closing week", func(t *testing.T) {
		week := WeekOf(time.Date(2026, 9, 6, 23, 58, 0, 0, loc))
		assert.Equal(t, "2026-09-06", week.WeekKey)
	})

	t.Run("utc input converts to reference timezone", func(t *testing.T) {
		// Monday 04:00 UTC is still Sunday evening in PT.
		week := WeekOf(time.Date(2026, 9, 7, 4, 0, 0, 0, time.UTC))
		assert.Equal(t, "2026-09-06", week.WeekKey)
	})
}

func TestDateKeyAndSlot(t *testing.T) {
	loc := pt(t)

	morning := time.Date(2026, 9, 2, 11, 59, 0, 0, loc)
	afternoon := time.Date(2026, 9, 2, 12, 0, 0, 0, loc)

	assert.Equal(t, "2026-09-02", DateKey(morning))
	assert.Equal(t, SlotAM, Slot(morning))
	assert.Equal(t, SlotPM, Slot(afternoon))

	// 06:00 UTC is the previous PT evening.
	utcNight := time.Date(2026, 9, 3, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-09-02", DateKey(utcNight))
	assert.Equal(t, SlotPM, Slot(utcNight))
}

func TestPrevWeekKey(t *testing.T) {
	prev, err := PrevWeekKey("2026-09-06")
	assert.NoError(t, err)
	assert.Equal(t, "2026-08-30", prev)

	_, err = PrevWeekKey("not-a-date")
	assert.Error(t, err)
}

func TestMonthKey(t *testing.T) {
	month, err := MonthKey("2026-09-06")
	assert.NoError(t, err)
	assert.Equal(t, "2026-09", month)
}

func TestDaysInMonth(t *testing.T) {
	cases := map[string]int{
		"2026-02-10": 28,
		"2028-02-01": 29,
		"2026-09-15": 30,
		"2026-12-31": 31,
	}
	for dateKey, want := range cases {
		got, err := DaysInMonth(dateKey)
		assert.NoError(t, err)
		assert.Equal(t, want, got, dateKey)
	}
}
