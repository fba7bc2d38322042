package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasExpired_CutoffBoundaries(t *testing.T) {
	cal, err := NewCalendar("America/New_York", "16:00")
	require.NoError(t, err)
	ny := cal.Location()
	exp := Date(2025, time.March, 21)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"day before expiration", time.Date(2025, 3, 20, 17, 0, 0, 0, ny), false},
		{"expiration morning", time.Date(2025, 3, 21, 9, 30, 0, 0, ny), false},
		{"one minute before close", time.Date(2025, 3, 21, 15, 59, 0, 0, ny), false},
		{"exactly at close", time.Date(2025, 3, 21, 16, 0, 0, 0, ny), true},
		{"evening of expiration", time.Date(2025, 3, 21, 20, 0, 0, 0, ny), true},
		{"day after", time.Date(2025, 3, 22, 0, 5, 0, 0, ny), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.HasExpired(exp, tt.now))
		})
	}
}

func TestToday_UsesExchangeTimezone(t *testing.T) {
	cal := DefaultCalendar()
	// 02:00 UTC on the 22nd is still the evening of the 21st in New York.
	now := time.Date(2025, 3, 22, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, Date(2025, time.March, 21), cal.Today(now))
}

func TestDaysBetween(t *testing.T) {
	a := Date(2025, time.January, 30)
	b := Date(2025, time.March, 1)
	assert.Equal(t, 30, DaysBetween(a, b))
	assert.Equal(t, -30, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a.Add(23*time.Hour)))
}

func TestNewCalendar_InvalidClose(t *testing.T) {
	_, err := NewCalendar("America/New_York", "4pm")
	assert.Error(t, err)
}

func TestLoadLocation_Fallback(t *testing.T) {
	loc := LoadLocation("Not/AZone")
	require.NotNil(t, loc)
}
