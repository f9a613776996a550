package markethours

import (
	"testing"
	"time"
)

func TestIsMarketOpen(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2026, 3, 10, 8, 59, 0, 0, KST), false},
		{"at open", time.Date(2026, 3, 10, 9, 0, 0, 0, KST), true},
		{"midday", time.Date(2026, 3, 10, 12, 30, 0, 0, KST), true},
		{"last minute", time.Date(2026, 3, 10, 15, 29, 59, 0, KST), true},
		{"at close", time.Date(2026, 3, 10, 15, 30, 0, 0, KST), false},
		{"saturday", time.Date(2026, 3, 14, 10, 0, 0, 0, KST), false},
		{"holiday", time.Date(2026, 10, 9, 10, 0, 0, 0, KST), false},
		{"utc input", time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC), true}, // 10:00 KST
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMarketOpen(tt.at); got != tt.want {
				t.Errorf("IsMarketOpen(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestToday_UsesExchangeDate(t *testing.T) {
	// 2025-06-09 23:30 UTC is already 2025-06-10 in Seoul.
	now := time.Date(2025, 6, 9, 23, 30, 0, 0, time.UTC)
	if got := Today(now); got != "2025-06-10" {
		t.Errorf("Today = %s, want 2025-06-10", got)
	}
	if !IsToday("2025-06-10", now) {
		t.Error("expected 2025-06-10 to be today")
	}
	if IsToday("2025-06-09", now) {
		t.Error("expected 2025-06-09 not to be today")
	}
}

func TestNextOpen_SkipsWeekendAndHolidays(t *testing.T) {
	// Friday 2026-02-13 after close; Seollal closes Mon-Wed.
	fri := time.Date(2026, 2, 13, 16, 0, 0, 0, KST)
	want := time.Date(2026, 2, 19, 9, 0, 0, 0, KST)
	if got := NextOpen(fri); !got.Equal(want) {
		t.Errorf("NextOpen = %v, want %v", got, want)
	}

	early := time.Date(2026, 3, 10, 7, 0, 0, 0, KST)
	if got := NextOpen(early); !got.Equal(time.Date(2026, 3, 10, 9, 0, 0, 0, KST)) {
		t.Errorf("NextOpen before open = %v", got)
	}
}

func TestTimeUntilClose(t *testing.T) {
	at := time.Date(2026, 3, 10, 15, 0, 0, 0, KST)
	if d := TimeUntilClose(at); d != 30*time.Minute {
		t.Errorf("TimeUntilClose = %v, want 30m", d)
	}
	if d := TimeUntilClose(at.Add(time.Hour)); d != 0 {
		t.Errorf("TimeUntilClose after close = %v, want 0", d)
	}
}
