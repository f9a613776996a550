// Package markethours is the KRX session clock. All exchange-local times are
// Korea Standard Time.
package markethours

import (
	"fmt"
	"time"
)

// KST is Korea Standard Time (UTC+9, no DST).
var KST = time.FixedZone("KST", 9*3600)

// Regular session hours in KST.
const (
	OpenHour    = 9
	OpenMinute  = 0
	CloseHour   = 15
	CloseMinute = 30
)

// DateLayout is the exchange-local calendar date format used on the wire.
const DateLayout = "2006-01-02"

// Today returns the exchange-local calendar date of t.
func Today(t time.Time) string {
	return t.In(KST).Format(DateLayout)
}

// IsToday reports whether date (YYYY-MM-DD) is the exchange-local date of now.
func IsToday(date string, now time.Time) bool {
	return date == Today(now)
}

// IsMarketOpen returns true if t falls within KRX regular hours
// (09:00-15:30 KST, Mon-Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	k := t.In(KST)
	if !IsTradingDay(k) {
		return false
	}
	hm := k.Hour()*60 + k.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon-Fri in KST.
func IsWeekday(t time.Time) bool {
	wd := t.In(KST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	k := t.In(KST)
	return IsWeekday(k) && !IsHoliday(k)
}

// NextOpen returns the next session open. If t is before today's open on a
// trading day, returns today's open.
func NextOpen(t time.Time) time.Time {
	k := t.In(KST)

	todayOpen := time.Date(k.Year(), k.Month(), k.Day(), OpenHour, OpenMinute, 0, 0, KST)
	if k.Before(todayOpen) && IsTradingDay(k) {
		return todayOpen
	}

	d := k.AddDate(0, 0, 1)
	for i := 0; i < 14; i++ { // long holidays (Seollal, Chuseok) plus weekends
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, KST)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(k.Year(), k.Month(), k.Day()+1, OpenHour, OpenMinute, 0, 0, KST)
}

// TodayClose returns today's close (15:30 KST).
func TodayClose(t time.Time) time.Time {
	k := t.In(KST)
	return time.Date(k.Year(), k.Month(), k.Day(), CloseHour, CloseMinute, 0, 0, KST)
}

// TimeUntilClose returns the duration until today's close, 0 once closed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open - closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	k := next.In(KST)
	return fmt.Sprintf("Market Closed - opens %s %s (%s)",
		k.Weekday().String()[:3], k.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
