package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWindowComputesEnd(t *testing.T) {
	w, err := NewWindow("2025-01-01", "09:00", DefaultSlotLength, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", w.Date())
	assert.Equal(t, "09:00:00", w.StartClock())
	assert.Equal(t, "09:03:00", w.EndClock())

	w, err = NewWindow("2025-01-01", "10:15:30", DefaultSlotLength, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "10:18:30", w.EndClock())
}

func TestNewWindowRejectsBadInput(t *testing.T) {
	_, err := NewWindow("01/01/2025", "09:00", DefaultSlotLength, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, err = NewWindow("2025-01-01", "9am", DefaultSlotLength, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidTime)
	_, err = NewWindow("2025-01-01", "23:58", DefaultSlotLength, time.UTC)
	assert.ErrorIs(t, err, ErrCrossesMidnight)
	_, err = NewWindow("2025-01-01", "23:57", DefaultSlotLength, time.UTC)
	assert.ErrorIs(t, err, ErrCrossesMidnight, "ending exactly at midnight")

	_, err = NewWindow("2025-01-01", "23:56:59", DefaultSlotLength, time.UTC)
	assert.NoError(t, err)
}

func TestImmediateWindowTruncates(t *testing.T) {
	now := time.Date(2025, 1, 1, 14, 7, 42, 123456789, time.UTC)
	w, err := ImmediateWindow(now, DefaultSlotLength)
	require.NoError(t, err)
	assert.Equal(t, "14:07:00", w.StartClock())
	assert.Equal(t, "14:10:00", w.EndClock())
}

func TestOverlaps(t *testing.T) {
	at := func(clock string) Window {
		w, err := NewWindow("2025-01-01", clock, DefaultSlotLength, time.UTC)
		require.NoError(t, err)
		return w
	}
	assert.True(t, Overlaps(at("09:00"), at("09:01")))
	assert.True(t, Overlaps(at("09:01"), at("09:00")))
	assert.True(t, Overlaps(at("09:00"), at("09:00")))
	assert.False(t, Overlaps(at("09:00"), at("09:03")), "touching endpoints")
	assert.False(t, Overlaps(at("09:03"), at("09:00")))
}

func TestWindowSlot(t *testing.T) {
	w, err := NewWindow("2025-01-01", "10:00", DefaultSlotLength, time.UTC)
	require.NoError(t, err)
	s := w.Slot(7, "Bay-1")
	assert.Equal(t, int64(7), s.RobotID)
	assert.Equal(t, "Bay-1", s.Location)
	assert.Equal(t, "10:00:00", s.Start)
	assert.Equal(t, "10:03:00", s.End)
}
