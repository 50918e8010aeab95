// Package utils provides shared market-session helpers.
package utils

import "time"

// IstanbulLocation is the timezone of the tracked exchange.
var IstanbulLocation *time.Location

func init() {
	var err error
	IstanbulLocation, err = time.LoadLocation("Europe/Istanbul")
	if err != nil {
		// Fallback to UTC+3
		IstanbulLocation = time.FixedZone("TRT", 3*60*60)
	}
}

// MarketStatus describes the exchange session state.
type MarketStatus string

const (
	// MarketOpen is the continuous trading session.
	MarketOpen MarketStatus = "open"
	// MarketPreOpen is the opening auction window.
	MarketPreOpen MarketStatus = "pre_open"
	// MarketClosed covers nights, weekends and the closing auction.
	MarketClosed MarketStatus = "closed"
)

// GetMarketStatus returns the session state at a given instant.
func GetMarketStatus(at time.Time) MarketStatus {
	now := at.In(IstanbulLocation)

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return MarketClosed
	}

	timeMinutes := now.Hour()*60 + now.Minute()

	// Opening auction: 09:40 - 10:00
	if timeMinutes >= 580 && timeMinutes < 600 {
		return MarketPreOpen
	}

	// Continuous trading: 10:00 - 18:00
	if timeMinutes >= 600 && timeMinutes < 1080 {
		return MarketOpen
	}

	return MarketClosed
}

// IsMarketOpen returns true when the exchange is in continuous trading.
func IsMarketOpen(at time.Time) bool {
	return GetMarketStatus(at) == MarketOpen
}

// IsWeekday returns true Monday through Friday in exchange time.
func IsWeekday(at time.Time) bool {
	wd := at.In(IstanbulLocation).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextMarketOpen returns the next continuous-session opening time.
func NextMarketOpen(after time.Time) time.Time {
	now := after.In(IstanbulLocation)

	next := time.Date(now.Year(), now.Month(), now.Day(), 10, 0, 0, 0, IstanbulLocation)
	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}

	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}

	return next
}
