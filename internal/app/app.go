package app

import (
	"context"
	"time"
)

// BusySource reports externally busy time for a therapist on a date, in
// minutes since midnight of that date.
type BusySource interface {
	BusyIntervals(ctx context.Context, t Therapist, date time.Time) ([]Interval, error)
}

// App wires the scheduling core to its store and optional collaborators.
type App struct {
	Store Store
	// Busy adds external calendar busy time to slot generation when set.
	Busy BusySource
	// Calendar serves the Google OAuth endpoints when set.
	Calendar *GoogleCalendar
	// Location is the practice timezone used to decide what "today" is.
	Location *time.Location
	// Now is replaced in tests.
	Now func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) location() *time.Location {
	if a.Location != nil {
		return a.Location
	}
	return time.UTC
}

// today is the current practice date at midnight UTC, comparable with ParseDate.
func (a *App) today() time.Time {
	y, m, d := a.now().In(a.location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
