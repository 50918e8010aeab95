// Package models contains the canonical data model shared across the service.
package models

import "time"

// RateSource identifies the external provider a rate was derived from.
type RateSource string

const (
	// SourceCentralBank is the central-bank daily XML feed.
	SourceCentralBank RateSource = "CENTRAL_BANK"
	// SourceQuoteAPIA is the primary quote API.
	SourceQuoteAPIA RateSource = "QUOTE_API_A"
	// SourceQuoteAPIB is the fallback quote API.
	SourceQuoteAPIB RateSource = "QUOTE_API_B"
)

// CanonicalRate is a normalized buy/sell currency rate from one provider.
// BuyingRate and SellingRate are always non-negative; entries whose primary
// buying rate is missing upstream are dropped during normalization rather
// than persisted with a zero placeholder.
type CanonicalRate struct {
	Code        string // 3-letter currency code
	BuyingRate  float64
	SellingRate float64
	Source      RateSource
	FetchedAt   time.Time
	RateDate    time.Time
}

// InstrumentQuote is the live quote for one instrument. PreviousClose holds
// the prior CurrentPrice captured at update time, a single step of history.
type InstrumentQuote struct {
	Symbol        string
	CurrentPrice  float64
	PreviousClose float64
	FetchedAt     time.Time
}

// PriceHistoryPoint is one daily OHLCV bar. Unique per (symbol, date);
// re-ingesting the same date is a no-op.
type PriceHistoryPoint struct {
	Symbol        string
	Date          time.Time
	Open          float64
	High          float64
	Low           float64
	Close         float64
	AdjustedClose float64
	Volume        int64
}
