// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"mintstack/internal/models"
)

// MarketDataStore defines the interface for market data persistence.
// Implementations provide their own concurrency guarantees; callers issue
// operations concurrently from independent ingestion jobs.
type MarketDataStore interface {
	// Rates
	SaveRates(ctx context.Context, rates []models.CanonicalRate) error
	LatestRatesBySource(ctx context.Context, source models.RateSource) ([]models.CanonicalRate, error)

	// Quotes
	// UpdateInstrumentPrice moves the stored current price into
	// PreviousClose and stores the new price. It reports whether the
	// price actually changed.
	UpdateInstrumentPrice(ctx context.Context, symbol string, price float64) (changed bool, err error)
	GetQuote(ctx context.Context, symbol string) (*models.InstrumentQuote, error)

	// Price history
	// UpsertPriceHistoryIfAbsent inserts the point unless a row for
	// (symbol, date) already exists. Re-ingestion is a no-op.
	UpsertPriceHistoryIfAbsent(ctx context.Context, point models.PriceHistoryPoint) (inserted bool, err error)
	GetPriceHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceHistoryPoint, error)

	// News
	NewsExistsByURL(ctx context.Context, url string) (bool, error)
	SaveNews(ctx context.Context, item models.NewsItem) error

	// Alerts
	SaveAlert(ctx context.Context, alert *models.PriceAlert) error
	ActiveAlertsBySymbol(ctx context.Context, symbol string) ([]models.PriceAlert, error)
	// TriggerAlert transitions an alert ACTIVE -> TRIGGERED, stamping the
	// trigger time and value. The transition is conditional on the alert
	// still being ACTIVE; it returns errors.ErrAlertNotActive when the
	// alert was already triggered or deactivated.
	TriggerAlert(ctx context.Context, alertID string, value float64, at time.Time) error
	MarkAlertNotified(ctx context.Context, alertID string) error
	DeactivateAlert(ctx context.Context, alertID string) error
	// AlertRecipient eagerly loads the contact for an alert's user so the
	// evaluator never performs hidden follow-up reads.
	AlertRecipient(ctx context.Context, userID string) (*models.AlertRecipient, error)

	// Users
	SaveUser(ctx context.Context, recipient models.AlertRecipient) error

	// Lifecycle
	Close() error
}
