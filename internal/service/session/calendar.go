package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nepselabs/feed-service/internal/config"
	"github.com/nepselabs/feed-service/internal/entity"
)

const (
	SessionPreMarket  = "pre-market"
	SessionRegular    = "regular"
	SessionAfterHours = "after-hours"
)

type timeOfDay struct {
	hour   int
	minute int
}

func (t timeOfDay) minutes() int {
	return t.hour*60 + t.minute
}

func (t timeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.hour, t.minute)
}

type window struct {
	name  string
	start timeOfDay
	end   timeOfDay
}

// Calendar answers "which trading session is active right now" as a pure
// function of wall-clock time. It holds only immutable configuration, so it
// is safe for concurrent use.
type Calendar struct {
	location    *time.Location
	tradingDays map[time.Weekday]bool
	windows     []window
}

// NewCalendar builds a calendar from config. Windows are kept sorted by
// start time; an empty config falls back to the NEPSE defaults.
func NewCalendar(cfg config.MarketCalendarConfig) (*Calendar, error) {
	if cfg.Timezone == "" && len(cfg.TradingDays) == 0 && len(cfg.Sessions) == 0 {
		return DefaultCalendar(), nil
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load market timezone: %w", err)
	}

	days := make(map[time.Weekday]bool, len(cfg.TradingDays))
	for _, raw := range cfg.TradingDays {
		day, err := parseWeekday(raw)
		if err != nil {
			return nil, err
		}
		days[day] = true
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one trading day is required")
	}

	windows := make([]window, 0, len(cfg.Sessions))
	for _, s := range cfg.Sessions {
		start, err := parseTimeOfDay(s.Start)
		if err != nil {
			return nil, fmt.Errorf("session %q start: %w", s.Name, err)
		}
		end, err := parseTimeOfDay(s.End)
		if err != nil {
			return nil, fmt.Errorf("session %q end: %w", s.Name, err)
		}
		if end.minutes() <= start.minutes() {
			return nil, fmt.Errorf("session %q must end after it starts", s.Name)
		}
		windows = append(windows, window{name: s.Name, start: start, end: end})
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("at least one session window is required")
	}

	sort.Slice(windows, func(i, j int) bool {
		return windows[i].start.minutes() < windows[j].start.minutes()
	})

	return &Calendar{location: loc, tradingDays: days, windows: windows}, nil
}

// DefaultCalendar is the NEPSE week: Sunday through Thursday, pre-open
// 10:30-11:00 and continuous trading 11:00-15:00, Kathmandu time.
func DefaultCalendar() *Calendar {
	loc, err := time.LoadLocation("Asia/Kathmandu")
	if err != nil {
		loc = time.FixedZone("NPT", 5*3600+45*60)
	}

	return &Calendar{
		location: loc,
		tradingDays: map[time.Weekday]bool{
			time.Sunday:    true,
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
		},
		windows: []window{
			{name: SessionPreMarket, start: timeOfDay{10, 30}, end: timeOfDay{11, 0}},
			{name: SessionRegular, start: timeOfDay{11, 0}, end: timeOfDay{15, 0}},
		},
	}
}

// CurrentSession returns the active session, or the next session with the
// minute count until it starts, scanning across day boundaries and the
// non-trading gap between weeks.
func (c *Calendar) CurrentSession(now time.Time) entity.MarketSession {
	local := now.In(c.location)
	minuteOfDay := local.Hour()*60 + local.Minute()

	if c.tradingDays[local.Weekday()] {
		for _, w := range c.windows {
			if minuteOfDay >= w.start.minutes() && minuteOfDay < w.end.minutes() {
				return entity.MarketSession{
					Name:     w.name,
					StartsAt: w.start.String(),
					EndsAt:   w.end.String(),
					Timezone: c.location.String(),
					IsActive: true,
				}
			}
		}
	}

	next, startsIn := c.nextWindow(local)

	return entity.MarketSession{
		Name:     next.name,
		StartsAt: next.start.String(),
		EndsAt:   next.end.String(),
		Timezone: c.location.String(),
		IsActive: false,
		NextSession: &entity.NextSession{
			Name:           next.name,
			StartsInMinute: startsIn,
		},
	}
}

// MarketStatus maps the current session onto the quote status enum.
func (c *Calendar) MarketStatus(now time.Time) entity.MarketStatus {
	current := c.CurrentSession(now)
	if !current.IsActive {
		return entity.MarketStatusClosed
	}

	switch current.Name {
	case SessionPreMarket:
		return entity.MarketStatusPreMarket
	case SessionAfterHours:
		return entity.MarketStatusAfterHours
	default:
		return entity.MarketStatusOpen
	}
}

// nextWindow finds the first upcoming window, today or on a later trading
// day, and the whole minutes until its start.
func (c *Calendar) nextWindow(local time.Time) (window, int) {
	minuteOfDay := local.Hour()*60 + local.Minute()

	if c.tradingDays[local.Weekday()] {
		for _, w := range c.windows {
			if minuteOfDay < w.start.minutes() {
				return w, w.start.minutes() - minuteOfDay
			}
		}
	}

	// Walk forward at most a full week to the next trading day.
	for offset := 1; offset <= 7; offset++ {
		day := local.AddDate(0, 0, offset)
		if !c.tradingDays[day.Weekday()] {
			continue
		}

		w := c.windows[0]
		remainingToday := 24*60 - minuteOfDay
		startsIn := remainingToday + (offset-1)*24*60 + w.start.minutes()
		return w, startsIn
	}

	// Unreachable with a non-empty trading-day set.
	return c.windows[0], 0
}

func parseWeekday(raw string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("unknown trading day: %q", raw)
	}
}

func parseTimeOfDay(raw string) (timeOfDay, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return timeOfDay{}, fmt.Errorf("invalid time of day %q: %w", raw, err)
	}

	return timeOfDay{hour: parsed.Hour(), minute: parsed.Minute()}, nil
}
