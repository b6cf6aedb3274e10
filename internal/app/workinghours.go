package app

import (
	"fmt"
	"strings"
	"time"
)

// DayHours is one weekday entry of a therapist's weekly template.
type DayHours struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Enabled bool   `json:"enabled"`
}

// WorkingHours is the weekly template stored as JSON on the therapist row.
// Every weekday is a named field so a template can never miss one.
type WorkingHours struct {
	Monday    DayHours `json:"monday"`
	Tuesday   DayHours `json:"tuesday"`
	Wednesday DayHours `json:"wednesday"`
	Thursday  DayHours `json:"thursday"`
	Friday    DayHours `json:"friday"`
	Saturday  DayHours `json:"saturday"`
	Sunday    DayHours `json:"sunday"`
}

// Window is a working-hours window in minutes since midnight, [Start, End).
type Window struct {
	Start int
	End   int
}

// DefaultWorkingHours is Monday to Friday, 09:00-17:00.
func DefaultWorkingHours() WorkingHours {
	weekday := DayHours{Start: "09:00", End: "17:00", Enabled: true}
	weekend := DayHours{Start: "09:00", End: "17:00", Enabled: false}
	return WorkingHours{
		Monday:    weekday,
		Tuesday:   weekday,
		Wednesday: weekday,
		Thursday:  weekday,
		Friday:    weekday,
		Saturday:  weekend,
		Sunday:    weekend,
	}
}

// Day returns the entry for the given weekday.
func (w WorkingHours) Day(wd time.Weekday) DayHours {
	switch wd {
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	default:
		return w.Sunday
	}
}

// WeekdayName returns the lowercase key used in the stored template.
func WeekdayName(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

// WindowFor resolves the window for date. ok is false when the day is disabled.
func (w WorkingHours) WindowFor(date time.Time) (win Window, ok bool, err error) {
	day := w.Day(date.Weekday())
	if !day.Enabled {
		return Window{}, false, nil
	}
	start, err := TimeToMinutes(day.Start)
	if err != nil {
		return Window{}, false, fmt.Errorf("%s start: %w", WeekdayName(date.Weekday()), err)
	}
	end, err := TimeToMinutes(day.End)
	if err != nil {
		return Window{}, false, fmt.Errorf("%s end: %w", WeekdayName(date.Weekday()), err)
	}
	if end <= start {
		return Window{}, false, nil
	}
	return Window{Start: start, End: end}, true, nil
}

// Validate checks every enabled day has well-formed times with start before end.
func (w WorkingHours) Validate() error {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		day := w.Day(wd)
		if !day.Enabled {
			continue
		}
		start, err := TimeToMinutes(day.Start)
		if err != nil {
			return fmt.Errorf("%s: %w", WeekdayName(wd), err)
		}
		end, err := TimeToMinutes(day.End)
		if err != nil {
			return fmt.Errorf("%s: %w", WeekdayName(wd), err)
		}
		if end <= start {
			return fmt.Errorf("%s: end must be after start", WeekdayName(wd))
		}
	}
	return nil
}
