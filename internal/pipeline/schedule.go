package pipeline

import (
	"fmt"
	"time"
)

// ScheduleWindow gates conversion work to a time-of-day band. The zero value
// is ungated. A window whose end precedes its start crosses midnight.
type ScheduleWindow struct {
	startMin int // minutes since midnight
	endMin   int
	enabled  bool
}

// ParseScheduleWindow builds a window from "HH:MM" bounds. Both empty means
// no gating.
func ParseScheduleWindow(start, end string) (ScheduleWindow, error) {
	if start == "" && end == "" {
		return ScheduleWindow{}, nil
	}
	s, err := parseClock(start)
	if err != nil {
		return ScheduleWindow{}, fmt.Errorf("schedule start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return ScheduleWindow{}, fmt.Errorf("schedule end: %w", err)
	}
	return ScheduleWindow{startMin: s, endMin: e, enabled: true}, nil
}

func parseClock(v string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", v)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range: %q", v)
	}
	return h*60 + m, nil
}

// Contains reports whether t falls inside the window.
func (w ScheduleWindow) Contains(t time.Time) bool {
	if !w.enabled {
		return true
	}
	now := t.Hour()*60 + t.Minute()
	if w.startMin <= w.endMin {
		return now >= w.startMin && now <= w.endMin
	}
	// window crosses midnight
	return now >= w.startMin || now <= w.endMin
}
