// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "mintstack/internal/errors"
	"mintstack/internal/models"
)

// SQLiteStore implements MarketDataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Currency rates, one row per (code, source, rate_date)
	CREATE TABLE IF NOT EXISTS rates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL,
		buying_rate REAL NOT NULL,
		selling_rate REAL NOT NULL,
		source TEXT NOT NULL,
		fetched_at DATETIME NOT NULL,
		rate_date DATETIME NOT NULL,
		UNIQUE(code, source, rate_date)
	);

	-- Live instrument quotes, one row per symbol
	CREATE TABLE IF NOT EXISTS instrument_quotes (
		symbol TEXT PRIMARY KEY,
		current_price REAL NOT NULL,
		previous_close REAL NOT NULL DEFAULT 0,
		fetched_at DATETIME NOT NULL
	);

	-- Daily OHLCV bars
	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		date DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		adjusted_close REAL NOT NULL,
		volume INTEGER NOT NULL,
		UNIQUE(symbol, date)
	);

	-- News items, deduplicated on source_url
	CREATE TABLE IF NOT EXISTS news (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		summary TEXT,
		source_url TEXT NOT NULL UNIQUE,
		source_name TEXT,
		image_url TEXT,
		category TEXT,
		published_at DATETIME NOT NULL
	);

	-- Price alerts
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		alert_type TEXT NOT NULL,
		target_value REAL NOT NULL,
		baseline_value REAL NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at DATETIME NOT NULL,
		triggered_at DATETIME,
		triggered_value REAL NOT NULL DEFAULT 0,
		notification_sent INTEGER NOT NULL DEFAULT 0
	);

	-- Alert recipients
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_rates_source_date ON rates(source, rate_date);
	CREATE INDEX IF NOT EXISTS idx_history_symbol_date ON price_history(symbol, date);
	CREATE INDEX IF NOT EXISTS idx_alerts_symbol_state ON alerts(symbol, state);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ============================================================================
// Rates Methods
// ============================================================================

// SaveRates persists a batch of canonical rates. Re-saving the same
// (code, source, rate_date) replaces the row, so a same-day refetch is
// idempotent.
func (s *SQLiteStore) SaveRates(ctx context.Context, rates []models.CanonicalRate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO rates (code, buying_rate, selling_rate, source, fetched_at, rate_date)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare rates insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rates {
		if _, err := stmt.ExecContext(ctx, r.Code, r.BuyingRate, r.SellingRate, string(r.Source), r.FetchedAt, r.RateDate); err != nil {
			return fmt.Errorf("failed to save rate %s: %w", r.Code, err)
		}
	}

	return tx.Commit()
}

// LatestRatesBySource retrieves the most recent rate per currency code
// for one source.
func (s *SQLiteStore) LatestRatesBySource(ctx context.Context, source models.RateSource) ([]models.CanonicalRate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, buying_rate, selling_rate, source, fetched_at, rate_date
		FROM rates r
		WHERE source = ? AND rate_date = (
			SELECT MAX(rate_date) FROM rates WHERE source = r.source AND code = r.code
		)
		ORDER BY code ASC
	`, string(source))
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	defer rows.Close()

	var rates []models.CanonicalRate
	for rows.Next() {
		var r models.CanonicalRate
		var src string
		if err := rows.Scan(&r.Code, &r.BuyingRate, &r.SellingRate, &src, &r.FetchedAt, &r.RateDate); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		r.Source = models.RateSource(src)
		rates = append(rates, r)
	}

	return rates, rows.Err()
}

// ============================================================================
// Quote Methods
// ============================================================================

// UpdateInstrumentPrice stores a new live price, moving the old price into
// previous_close. Returns false when the stored price already equals the
// new one.
func (s *SQLiteStore) UpdateInstrumentPrice(ctx context.Context, symbol string, price float64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current float64
	err = tx.QueryRowContext(ctx, `
		SELECT current_price FROM instrument_quotes WHERE symbol = ?
	`, symbol).Scan(&current)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO instrument_quotes (symbol, current_price, previous_close, fetched_at)
			VALUES (?, ?, 0, ?)
		`, symbol, price, time.Now())
		if err != nil {
			return false, fmt.Errorf("failed to insert quote %s: %w", symbol, err)
		}
		return true, tx.Commit()
	case err != nil:
		return false, fmt.Errorf("failed to read quote %s: %w", symbol, err)
	}

	if current == price {
		// Refresh the fetch time only
		_, err = tx.ExecContext(ctx, `
			UPDATE instrument_quotes SET fetched_at = ? WHERE symbol = ?
		`, time.Now(), symbol)
		if err != nil {
			return false, fmt.Errorf("failed to touch quote %s: %w", symbol, err)
		}
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE instrument_quotes
		SET previous_close = current_price, current_price = ?, fetched_at = ?
		WHERE symbol = ?
	`, price, time.Now(), symbol)
	if err != nil {
		return false, fmt.Errorf("failed to update quote %s: %w", symbol, err)
	}

	return true, tx.Commit()
}

// GetQuote retrieves the stored live quote for a symbol.
func (s *SQLiteStore) GetQuote(ctx context.Context, symbol string) (*models.InstrumentQuote, error) {
	var q models.InstrumentQuote
	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, current_price, previous_close, fetched_at
		FROM instrument_quotes WHERE symbol = ?
	`, symbol).Scan(&q.Symbol, &q.CurrentPrice, &q.PreviousClose, &q.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrSymbolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query quote %s: %w", symbol, err)
	}
	return &q, nil
}

// ============================================================================
// Price History Methods
// ============================================================================

// UpsertPriceHistoryIfAbsent inserts a bar unless (symbol, date) exists.
func (s *SQLiteStore) UpsertPriceHistoryIfAbsent(ctx context.Context, p models.PriceHistoryPoint) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO price_history (symbol, date, open, high, low, close, adjusted_close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.AdjustedClose, p.Volume)
	if err != nil {
		return false, fmt.Errorf("failed to save history point %s: %w", p.Symbol, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return rows > 0, nil
}

// GetPriceHistory retrieves bars for a symbol in a date range.
func (s *SQLiteStore) GetPriceHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceHistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, date, open, high, low, close, adjusted_close, volume
		FROM price_history
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var points []models.PriceHistoryPoint
	for rows.Next() {
		var p models.PriceHistoryPoint
		if err := rows.Scan(&p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.AdjustedClose, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan history point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// ============================================================================
// News Methods
// ============================================================================

// NewsExistsByURL reports whether a news item with this source URL is stored.
func (s *SQLiteStore) NewsExistsByURL(ctx context.Context, url string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM news WHERE source_url = ?
	`, url).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check news url: %w", err)
	}
	return count > 0, nil
}

// SaveNews persists one news item. A duplicate source URL is a no-op.
func (s *SQLiteStore) SaveNews(ctx context.Context, item models.NewsItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO news (id, title, summary, source_url, source_name, image_url, category, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Title, item.Summary, item.SourceURL, item.SourceName, item.ImageURL, item.Category, item.PublishedAt)
	if err != nil {
		return fmt.Errorf("failed to save news item: %w", err)
	}
	return nil
}

// ============================================================================
// Alert Methods
// ============================================================================

// SaveAlert saves an alert to the database.
func (s *SQLiteStore) SaveAlert(ctx context.Context, alert *models.PriceAlert) error {
	sent := 0
	if alert.NotificationSent {
		sent = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alerts
			(id, user_id, symbol, alert_type, target_value, baseline_value, state, created_at, triggered_at, triggered_value, notification_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, alert.ID, alert.UserID, alert.Symbol, string(alert.Type), alert.TargetValue,
		alert.BaselineValue, string(alert.State), alert.CreatedAt, alert.TriggeredAt,
		alert.TriggeredValue, sent)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// ActiveAlertsBySymbol retrieves all ACTIVE alerts for a symbol.
func (s *SQLiteStore) ActiveAlertsBySymbol(ctx context.Context, symbol string) ([]models.PriceAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, symbol, alert_type, target_value, baseline_value, state, created_at, triggered_at, triggered_value, notification_sent
		FROM alerts WHERE symbol = ? AND state = 'ACTIVE' ORDER BY created_at ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.PriceAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

func scanAlert(rows *sql.Rows) (models.PriceAlert, error) {
	var a models.PriceAlert
	var alertType, state string
	var sent int
	if err := rows.Scan(&a.ID, &a.UserID, &a.Symbol, &alertType, &a.TargetValue,
		&a.BaselineValue, &state, &a.CreatedAt, &a.TriggeredAt, &a.TriggeredValue, &sent); err != nil {
		return a, fmt.Errorf("failed to scan alert: %w", err)
	}
	a.Type = models.AlertType(alertType)
	a.State = models.AlertState(state)
	a.NotificationSent = sent == 1
	return a, nil
}

// TriggerAlert transitions an alert to TRIGGERED. The WHERE clause makes
// the transition conditional on the alert still being ACTIVE, which is
// the exclusive gate against double-triggering.
func (s *SQLiteStore) TriggerAlert(ctx context.Context, alertID string, value float64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts
		SET state = 'TRIGGERED', triggered_at = ?, triggered_value = ?
		WHERE id = ? AND state = 'ACTIVE'
	`, at, value, alertID)
	if err != nil {
		return fmt.Errorf("failed to trigger alert: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM alerts WHERE id = ?`, alertID).Scan(&count); err == nil && count == 0 {
			return apperrors.ErrAlertNotFound
		}
		return apperrors.ErrAlertNotActive
	}

	return nil
}

// MarkAlertNotified records the best-effort notification flag.
func (s *SQLiteStore) MarkAlertNotified(ctx context.Context, alertID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET notification_sent = 1 WHERE id = ?
	`, alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert notified: %w", err)
	}
	return nil
}

// DeactivateAlert marks an alert INACTIVE via explicit user action.
func (s *SQLiteStore) DeactivateAlert(ctx context.Context, alertID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET state = 'INACTIVE' WHERE id = ? AND state = 'ACTIVE'
	`, alertID)
	if err != nil {
		return fmt.Errorf("failed to deactivate alert: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.ErrAlertNotFound
	}
	return nil
}

// AlertRecipient retrieves the contact for an alert's user.
func (s *SQLiteStore) AlertRecipient(ctx context.Context, userID string) (*models.AlertRecipient, error) {
	var r models.AlertRecipient
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name FROM users WHERE id = ?
	`, userID).Scan(&r.UserID, &r.Email, &r.Name)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrDataNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %s: %w", userID, err)
	}
	return &r, nil
}

// SaveUser saves an alert recipient.
func (s *SQLiteStore) SaveUser(ctx context.Context, recipient models.AlertRecipient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO users (id, email, name) VALUES (?, ?, ?)
	`, recipient.UserID, recipient.Email, recipient.Name)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
