package schedule

import (
	"errors"
	"time"

	"robofleet/store"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04:05"

	// DefaultSlotLength is the length of every booking.
	DefaultSlotLength = 3 * time.Minute
)

var (
	ErrInvalidDate     = errors.New("date must be YYYY-MM-DD")
	ErrInvalidTime     = errors.New("time must be HH:MM or HH:MM:SS")
	ErrCrossesMidnight = errors.New("booking window may not cross midnight")
)

// Window is a half-open [Start, End) booking interval within a single day.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds the window starting at date+clock in loc. The end is
// always start+length; callers never supply it.
func NewWindow(date, clock string, length time.Duration, loc *time.Location) (Window, error) {
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return Window{}, ErrInvalidDate
	}
	c, err := ParseClock(clock)
	if err != nil {
		return Window{}, err
	}
	start := time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc)
	return windowFrom(start, length)
}

// ImmediateWindow starts at now truncated to the minute.
func ImmediateWindow(now time.Time, length time.Duration) (Window, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, now.Location())
	return windowFrom(start, length)
}

func windowFrom(start time.Time, length time.Duration) (Window, error) {
	end := start.Add(length)
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	if sy != ey || sm != em || sd != ed {
		// An end of exactly midnight stores as 00:00:00 and sorts before start.
		return Window{}, ErrCrossesMidnight
	}
	return Window{Start: start, End: end}, nil
}

// ParseClock accepts HH:MM or HH:MM:SS.
func ParseClock(s string) (time.Time, error) {
	if t, err := time.Parse("15:04", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(ClockLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, ErrInvalidTime
}

func (w Window) Date() string       { return w.Start.Format(DateLayout) }
func (w Window) StartClock() string { return w.Start.Format(ClockLayout) }
func (w Window) EndClock() string   { return w.End.Format(ClockLayout) }

// Slot binds the window to a robot and location for the store's overlap check.
func (w Window) Slot(robotID int64, location string) store.Slot {
	return store.Slot{RobotID: robotID, Location: location, Date: w.Date(), Start: w.StartClock(), End: w.EndClock()}
}

// Overlaps reports whether two windows intersect. Touching endpoints do not.
func Overlaps(a, b Window) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}
