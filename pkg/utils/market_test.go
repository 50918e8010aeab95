package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func istanbul(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, IstanbulLocation)
}

func TestGetMarketStatus(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want MarketStatus
	}{
		{"weekday before the auction", istanbul(2026, time.August, 26, 9, 30), MarketClosed},
		{"opening auction start", istanbul(2026, time.August, 26, 9, 40), MarketPreOpen},
		{"opening auction end", istanbul(2026, time.August, 26, 9, 59), MarketPreOpen},
		{"continuous session start", istanbul(2026, time.August, 26, 10, 0), MarketOpen},
		{"midday", istanbul(2026, time.August, 26, 13, 30), MarketOpen},
		{"last open minute", istanbul(2026, time.August, 26, 17, 59), MarketOpen},
		{"session close", istanbul(2026, time.August, 26, 18, 0), MarketClosed},
		{"saturday midday", istanbul(2026, time.August, 29, 12, 0), MarketClosed},
		{"sunday midday", istanbul(2026, time.August, 30, 12, 0), MarketClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetMarketStatus(tt.at))
		})
	}
}

func TestGetMarketStatus_ConvertsForeignZones(t *testing.T) {
	// 08:00 UTC on a Wednesday is 11:00 exchange time
	at := time.Date(2026, time.August, 26, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, MarketOpen, GetMarketStatus(at))
}

func TestIsWeekday(t *testing.T) {
	assert.True(t, IsWeekday(istanbul(2026, time.August, 28, 12, 0)))  // Friday
	assert.False(t, IsWeekday(istanbul(2026, time.August, 29, 12, 0))) // Saturday
	assert.False(t, IsWeekday(istanbul(2026, time.August, 30, 12, 0))) // Sunday
	assert.True(t, IsWeekday(istanbul(2026, time.August, 31, 12, 0)))  // Monday
}

func TestNextMarketOpen(t *testing.T) {
	// Before the open on a weekday: same day
	got := NextMarketOpen(istanbul(2026, time.August, 26, 8, 0))
	assert.Equal(t, istanbul(2026, time.August, 26, 10, 0), got)

	// After the open: next day
	got = NextMarketOpen(istanbul(2026, time.August, 26, 14, 0))
	assert.Equal(t, istanbul(2026, time.August, 27, 10, 0), got)

	// Friday afternoon rolls over the weekend to Monday
	got = NextMarketOpen(istanbul(2026, time.August, 28, 19, 0))
	assert.Equal(t, istanbul(2026, time.August, 31, 10, 0), got)

	// Saturday also lands on Monday
	got = NextMarketOpen(istanbul(2026, time.August, 29, 12, 0))
	assert.Equal(t, istanbul(2026, time.August, 31, 10, 0), got)
}
