package session

import (
	"testing"
	"time"

	"github.com/nepselabs/feed-service/internal/config"
	"github.com/nepselabs/feed-service/internal/entity"
)

func kathmandu(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kathmandu")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestCurrentSessionActive(t *testing.T) {
	cal := DefaultCalendar()
	loc := kathmandu(t)

	// Monday 2026-08-24 12:00 NPT, inside continuous trading.
	now := time.Date(2026, time.August, 24, 12, 0, 0, 0, loc)
	got := cal.CurrentSession(now)

	if !got.IsActive {
		t.Fatalf("expected active session, got %+v", got)
	}
	if got.Name != SessionRegular {
		t.Errorf("expected regular session, got %s", got.Name)
	}
	if got.NextSession != nil {
		t.Errorf("active session must not carry a next session descriptor")
	}
	if cal.MarketStatus(now) != entity.MarketStatusOpen {
		t.Errorf("expected open market status")
	}
}

func TestCurrentSessionPreMarket(t *testing.T) {
	cal := DefaultCalendar()
	loc := kathmandu(t)

	now := time.Date(2026, time.August, 23, 10, 45, 0, 0, loc) // Sunday 10:45
	got := cal.CurrentSession(now)

	if !got.IsActive || got.Name != SessionPreMarket {
		t.Fatalf("expected active pre-market, got %+v", got)
	}
	if cal.MarketStatus(now) != entity.MarketStatusPreMarket {
		t.Errorf("expected pre-market status")
	}
}

func TestNextSessionSameDay(t *testing.T) {
	cal := DefaultCalendar()
	loc := kathmandu(t)

	// Sunday 09:00, 90 minutes before pre-open.
	now := time.Date(2026, time.August, 23, 9, 0, 0, 0, loc)
	got := cal.CurrentSession(now)

	if got.IsActive {
		t.Fatalf("expected inactive session, got %+v", got)
	}
	if got.NextSession == nil {
		t.Fatal("expected next session descriptor")
	}
	if got.NextSession.Name != SessionPreMarket {
		t.Errorf("expected next pre-market, got %s", got.NextSession.Name)
	}
	if got.NextSession.StartsInMinute != 90 {
		t.Errorf("expected 90 minutes, got %d", got.NextSession.StartsInMinute)
	}
}

func TestNextSessionAcrossWeekGap(t *testing.T) {
	// Regular-only calendar so the next session is the regular open.
	cal, err := NewCalendar(config.MarketCalendarConfig{
		Timezone:    "Asia/Kathmandu",
		TradingDays: []string{"sunday", "monday", "tuesday", "wednesday", "thursday"},
		Sessions: []config.SessionWindowConfig{
			{Name: SessionRegular, Start: "11:00", End: "15:00"},
		},
	})
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}
	loc := kathmandu(t)

	// Friday 2026-08-21 12:00 NPT, a non-trading day. Next regular session
	// opens Sunday 11:00: 12h left Friday + 24h Saturday + 11h Sunday.
	now := time.Date(2026, time.August, 21, 12, 0, 0, 0, loc)
	got := cal.CurrentSession(now)

	if got.IsActive {
		t.Fatalf("expected inactive outside trading days, got %+v", got)
	}
	want := 12*60 + 24*60 + 11*60
	if got.NextSession == nil || got.NextSession.StartsInMinute != want {
		t.Fatalf("expected next session in %d minutes, got %+v", want, got.NextSession)
	}
	if got.NextSession.Name != SessionRegular {
		t.Errorf("expected regular session next, got %s", got.NextSession.Name)
	}
}

func TestNextSessionOnNonTradingDayIsFirstWindow(t *testing.T) {
	cal := DefaultCalendar()
	loc := kathmandu(t)

	// Saturday 2026-08-22 12:00 NPT. The next window reported is Sunday's
	// pre-open at 10:30, not the regular open: 12h left Saturday + 10h30.
	now := time.Date(2026, time.August, 22, 12, 0, 0, 0, loc)
	got := cal.CurrentSession(now)

	if got.IsActive {
		t.Fatalf("expected inactive session on Saturday, got %+v", got)
	}
	if got.NextSession == nil || got.NextSession.Name != SessionPreMarket {
		t.Fatalf("expected pre-market as the next window, got %+v", got.NextSession)
	}
	want := 12*60 + 10*60 + 30
	if got.NextSession.StartsInMinute != want {
		t.Errorf("expected %d minutes to pre-open, got %d", want, got.NextSession.StartsInMinute)
	}
}

func TestNextSessionAfterCloseThursday(t *testing.T) {
	cal := DefaultCalendar()
	loc := kathmandu(t)

	// Thursday 2026-08-20 16:00 NPT, after close. Next window is Sunday's
	// pre-open at 10:30.
	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, loc)
	got := cal.CurrentSession(now)

	if got.IsActive {
		t.Fatalf("expected inactive session, got %+v", got)
	}
	want := 8*60 + 2*24*60 + 10*60 + 30
	if got.NextSession == nil || got.NextSession.StartsInMinute != want {
		t.Fatalf("expected %d minutes to pre-open, got %+v", want, got.NextSession)
	}
	if cal.MarketStatus(now) != entity.MarketStatusClosed {
		t.Errorf("expected closed status")
	}
}

func TestNewCalendarRejectsBadConfig(t *testing.T) {
	_, err := NewCalendar(config.MarketCalendarConfig{
		Timezone:    "Asia/Kathmandu",
		TradingDays: []string{"someday"},
		Sessions: []config.SessionWindowConfig{
			{Name: SessionRegular, Start: "11:00", End: "15:00"},
		},
	})
	if err == nil {
		t.Fatal("expected error for unknown trading day")
	}

	_, err = NewCalendar(config.MarketCalendarConfig{
		Timezone:    "Asia/Kathmandu",
		TradingDays: []string{"sunday"},
		Sessions: []config.SessionWindowConfig{
			{Name: SessionRegular, Start: "15:00", End: "11:00"},
		},
	})
	if err == nil {
		t.Fatal("expected error for inverted session window")
	}
}
