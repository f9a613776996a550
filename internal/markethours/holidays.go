package markethours

import "time"

// KRX closures for 2026 (weekday dates only).
// Source: KRX market calendar; lunar dates marked tentative until confirmed.
var krxHolidays2026 = []struct {
	month time.Month
	day   int
}{
	{time.January, 1},    // New Year's Day
	{time.February, 16},  // Seollal
	{time.February, 17},  // Seollal
	{time.February, 18},  // Seollal
	{time.March, 2},      // Independence Movement Day (substitute)
	{time.May, 1},        // Labour Day
	{time.May, 5},        // Children's Day
	{time.May, 25},       // Buddha's Birthday (substitute, tentative)
	{time.June, 3},       // Local elections
	{time.August, 17},    // Liberation Day (substitute)
	{time.September, 24}, // Chuseok (tentative)
	{time.September, 25}, // Chuseok (tentative)
	{time.October, 5},    // National Foundation Day (substitute)
	{time.October, 9},    // Hangul Day
	{time.December, 25},  // Christmas
	{time.December, 31},  // Year-end closing
}

var holidaySet map[string]bool

func init() {
	holidaySet = make(map[string]bool, len(krxHolidays2026))
	for _, h := range krxHolidays2026 {
		holidaySet[dateKey(2026, h.month, h.day)] = true
	}
}

// IsHoliday returns true if the KST date of t is a KRX closure.
func IsHoliday(t time.Time) bool {
	k := t.In(KST)
	return holidaySet[dateKey(k.Year(), k.Month(), k.Day())]
}

func dateKey(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, KST).Format(DateLayout)
}
