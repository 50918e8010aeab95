package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mintstack/internal/errors"
	"mintstack/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func activeAlert(id, symbol string, alertType models.AlertType, target, baseline float64) *models.PriceAlert {
	return &models.PriceAlert{
		ID:            id,
		UserID:        "user-1",
		Symbol:        symbol,
		Type:          alertType,
		TargetValue:   target,
		BaselineValue: baseline,
		State:         models.AlertActive,
		CreatedAt:     time.Now(),
	}
}

func TestSaveRates_SameDayRefetchIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	date := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	rate := models.CanonicalRate{
		Code:        "USD",
		BuyingRate:  34.10,
		SellingRate: 34.55,
		Source:      models.SourceCentralBank,
		FetchedAt:   time.Now(),
		RateDate:    date,
	}

	require.NoError(t, s.SaveRates(ctx, []models.CanonicalRate{rate}))

	rate.BuyingRate = 34.20
	require.NoError(t, s.SaveRates(ctx, []models.CanonicalRate{rate}))

	rates, err := s.LatestRatesBySource(ctx, models.SourceCentralBank)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.InDelta(t, 34.20, rates[0].BuyingRate, 1e-9)
}

func TestLatestRatesBySource_PicksNewestDatePerCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRates(ctx, []models.CanonicalRate{
		{Code: "USD", BuyingRate: 34.00, SellingRate: 34.40, Source: models.SourceCentralBank, FetchedAt: time.Now(), RateDate: older},
		{Code: "USD", BuyingRate: 34.20, SellingRate: 34.60, Source: models.SourceCentralBank, FetchedAt: time.Now(), RateDate: newer},
		{Code: "EUR", BuyingRate: 36.50, SellingRate: 36.75, Source: models.SourceCentralBank, FetchedAt: time.Now(), RateDate: older},
	}))

	rates, err := s.LatestRatesBySource(ctx, models.SourceCentralBank)
	require.NoError(t, err)
	require.Len(t, rates, 2)

	assert.Equal(t, "EUR", rates[0].Code)
	assert.InDelta(t, 36.50, rates[0].BuyingRate, 1e-9)
	assert.Equal(t, "USD", rates[1].Code)
	assert.InDelta(t, 34.20, rates[1].BuyingRate, 1e-9)
}

func TestUpdateInstrumentPrice_PreviousCloseSemantics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	changed, err := s.UpdateInstrumentPrice(ctx, "THYAO", 287.25)
	require.NoError(t, err)
	assert.True(t, changed, "first insert is a change")

	quote, err := s.GetQuote(ctx, "THYAO")
	require.NoError(t, err)
	assert.InDelta(t, 287.25, quote.CurrentPrice, 1e-9)
	assert.Zero(t, quote.PreviousClose)

	changed, err = s.UpdateInstrumentPrice(ctx, "THYAO", 287.25)
	require.NoError(t, err)
	assert.False(t, changed, "same price is not a change")

	changed, err = s.UpdateInstrumentPrice(ctx, "THYAO", 290.00)
	require.NoError(t, err)
	assert.True(t, changed)

	quote, err = s.GetQuote(ctx, "THYAO")
	require.NoError(t, err)
	assert.InDelta(t, 290.00, quote.CurrentPrice, 1e-9)
	assert.InDelta(t, 287.25, quote.PreviousClose, 1e-9)
}

func TestGetQuote_UnknownSymbol(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, apperrors.ErrSymbolNotFound)
}

func TestUpsertPriceHistoryIfAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	point := models.PriceHistoryPoint{
		Symbol:        "THYAO",
		Date:          time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC),
		Open:          285.0,
		High:          288.0,
		Low:           284.0,
		Close:         287.0,
		AdjustedClose: 287.0,
		Volume:        1000000,
	}

	inserted, err := s.UpsertPriceHistoryIfAbsent(ctx, point)
	require.NoError(t, err)
	assert.True(t, inserted)

	// re-inserting the same bar, even with different values, is a no-op
	point.Close = 999.0
	inserted, err = s.UpsertPriceHistoryIfAbsent(ctx, point)
	require.NoError(t, err)
	assert.False(t, inserted)

	points, err := s.GetPriceHistory(ctx, "THYAO",
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 287.0, points[0].Close, 1e-9)
}

func TestSaveNews_DeduplicatesOnSourceURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := models.NewsItem{
		ID:          "news-1",
		Title:       "Central bank holds policy rate",
		SourceURL:   "https://example.com/news/1",
		PublishedAt: time.Now(),
	}
	require.NoError(t, s.SaveNews(ctx, item))

	exists, err := s.NewsExistsByURL(ctx, item.SourceURL)
	require.NoError(t, err)
	assert.True(t, exists)

	// same URL under a new ID must not create a second row
	item.ID = "news-2"
	require.NoError(t, s.SaveNews(ctx, item))

	exists, err = s.NewsExistsByURL(ctx, item.SourceURL)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.NewsExistsByURL(ctx, "https://example.com/other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTriggerAlert_OnlyFiresOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alert := activeAlert("alert-1", "THYAO", models.AlertAbove, 290.0, 0)
	require.NoError(t, s.SaveAlert(ctx, alert))

	at := time.Now()
	require.NoError(t, s.TriggerAlert(ctx, "alert-1", 291.5, at))

	// a second trigger attempt hits the state gate
	err := s.TriggerAlert(ctx, "alert-1", 292.0, at)
	assert.ErrorIs(t, err, apperrors.ErrAlertNotActive)

	// triggered alerts disappear from the active set
	alerts, err := s.ActiveAlertsBySymbol(ctx, "THYAO")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestTriggerAlert_UnknownAlert(t *testing.T) {
	s := newTestStore(t)

	err := s.TriggerAlert(context.Background(), "missing", 100.0, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrAlertNotFound)
}

func TestActiveAlertsBySymbol_FiltersStateAndSymbol(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAlert(ctx, activeAlert("a1", "THYAO", models.AlertAbove, 290.0, 0)))
	require.NoError(t, s.SaveAlert(ctx, activeAlert("a2", "GARAN", models.AlertBelow, 100.0, 0)))

	inactive := activeAlert("a3", "THYAO", models.AlertBelow, 250.0, 0)
	inactive.State = models.AlertInactive
	require.NoError(t, s.SaveAlert(ctx, inactive))

	alerts, err := s.ActiveAlertsBySymbol(ctx, "THYAO")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a1", alerts[0].ID)
	assert.Equal(t, models.AlertAbove, alerts[0].Type)
}

func TestDeactivateAlert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAlert(ctx, activeAlert("a1", "THYAO", models.AlertAbove, 290.0, 0)))
	require.NoError(t, s.DeactivateAlert(ctx, "a1"))

	alerts, err := s.ActiveAlertsBySymbol(ctx, "THYAO")
	require.NoError(t, err)
	assert.Empty(t, alerts)

	err = s.DeactivateAlert(ctx, "a1")
	assert.ErrorIs(t, err, apperrors.ErrAlertNotFound)
}

func TestMarkAlertNotified(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alert := activeAlert("a1", "THYAO", models.AlertAbove, 290.0, 0)
	require.NoError(t, s.SaveAlert(ctx, alert))
	require.NoError(t, s.TriggerAlert(ctx, "a1", 291.0, time.Now()))
	require.NoError(t, s.MarkAlertNotified(ctx, "a1"))
}

func TestAlertRecipient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, models.AlertRecipient{
		UserID: "user-1",
		Email:  "trader@example.com",
		Name:   "Deniz",
	}))

	recipient, err := s.AlertRecipient(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "trader@example.com", recipient.Email)
	assert.Equal(t, "Deniz", recipient.Name)

	_, err = s.AlertRecipient(ctx, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
}
