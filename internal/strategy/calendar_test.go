package strategy

import (
	"testing"
	"time"
)

func mustCalendar(t *testing.T) *Calendar {
	t.Helper()
	c, err := NewCalendar("Asia/Kolkata", "09:15", "15:30", nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCalendarOpenWindow(t *testing.T) {
	c := mustCalendar(t)
	ist, _ := time.LoadLocation("Asia/Kolkata")

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"mid session", time.Date(2025, 6, 2, 11, 0, 0, 0, ist), true}, // Monday
		{"at open", time.Date(2025, 6, 2, 9, 15, 0, 0, ist), true},
		{"before open", time.Date(2025, 6, 2, 9, 14, 0, 0, ist), false},
		{"at close", time.Date(2025, 6, 2, 15, 30, 0, 0, ist), false},
		{"saturday", time.Date(2025, 6, 7, 11, 0, 0, 0, ist), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.IsOpen(tc.at); got != tc.want {
				t.Fatalf("IsOpen(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestCalendarConvertsTimezone(t *testing.T) {
	c := mustCalendar(t)
	// 05:45 UTC == 11:15 IST, inside session
	at := time.Date(2025, 6, 2, 5, 45, 0, 0, time.UTC)
	if !c.IsOpen(at) {
		t.Fatal("UTC instant inside IST session must be open")
	}
}

func TestCalendarRejectsInvertedWindow(t *testing.T) {
	if _, err := NewCalendar("UTC", "15:30", "09:15", nil); err == nil {
		t.Fatal("expected error for close before open")
	}
}
