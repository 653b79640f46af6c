package rewards

import (
	"time"
)

// All period keys are computed in the platform's reference timezone.
// A raffle/reward week runs Monday 00:00 PT through Sunday 23:59 PT and is
// keyed by its ending Sunday date.
const ReferenceTimezone = "America/Los_Angeles"

// Accrual run slots: before noon PT is AM, after is PM.
const (
	SlotAM = "AM"
	SlotPM = "PM"
)

var ptLocation = mustLoadLocation(ReferenceTimezone)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("rewards: load timezone " + name + ": " + err.Error())
	}
	return loc
}

// DateKey returns the YYYY-MM-DD date key for t in the reference timezone.
func DateKey(t time.Time) string {
	return t.In(ptLocation).Format("2006-01-02")
}

// Slot returns the twice-daily accrual slot for t.
func Slot(t time.Time) string {
	if t.In(ptLocation).Hour() < 12 {
		return SlotAM
	}
	return SlotPM
}

// WeekInfo describes the reward week containing a point in time.
type WeekInfo struct {
	WeekKey      string    // ending Sunday date key
	MondayKey    string    // Monday of the same week
	OpensAt      time.Time // Monday 00:00 PT
	ClosesAt     time.Time // Sunday 23:59 PT
	NextWeekKey  string
	NextOpensAt  time.Time
	NextClosesAt time.Time // claim expiry for this week's winners
}

// WeekOf computes the week containing t.
func WeekOf(t time.Time) WeekInfo {
	local := t.In(ptLocation)
	daysUntilSunday := (7 - int(local.Weekday())) % 7
	sunday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, ptLocation).
		AddDate(0, 0, daysUntilSunday)
	monday := sunday.AddDate(0, 0, -6)
	nextSunday := sunday.AddDate(0, 0, 7)
	nextMonday := monday.AddDate(0, 0, 7)

	return WeekInfo{
		WeekKey:      sunday.Format("2006-01-02"),
		MondayKey:    monday.Format("2006-01-02"),
		OpensAt:      monday,
		ClosesAt:     closeOf(sunday),
		NextWeekKey:  nextSunday.Format("2006-01-02"),
		NextOpensAt:  nextMonday,
		NextClosesAt: closeOf(nextSunday),
	}
}

func closeOf(sundayMidnight time.Time) time.Time {
	return sundayMidnight.Add(23*time.Hour + 59*time.Minute)
}

// PrevWeekKey returns the week key seven days before weekKey.
func PrevWeekKey(weekKey string) (string, error) {
	d, err := time.ParseInLocation("2006-01-02", weekKey, ptLocation)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, -7).Format("2006-01-02"), nil
}

// MonthKey returns the YYYY-MM month key for a week key, used to look up
// monthly MVM stats.
func MonthKey(weekKey string) (string, error) {
	d, err := time.ParseInLocation("2006-01-02", weekKey, ptLocation)
	if err != nil {
		return "", err
	}
	return d.Format("2006-01"), nil
}

// DaysInMonth returns the number of days in the month containing the given
// date key.
func DaysInMonth(dateKey string) (int, error) {
	d, err := time.ParseInLocation("2006-01-02", dateKey, ptLocation)
	if err != nil {
		return 0, err
	}
	firstOfNext := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, ptLocation).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1).Day(), nil
}
