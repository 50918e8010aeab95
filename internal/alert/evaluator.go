// Package alert evaluates user price alerts against incoming updates.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "mintstack/internal/errors"
	"mintstack/internal/logging"
	"mintstack/internal/models"
	"mintstack/internal/notify"
	"mintstack/internal/store"
	"mintstack/internal/stream"
)

// Evaluator checks ACTIVE alerts for a symbol whenever its price changes
// and performs the one-time ACTIVE -> TRIGGERED transition. The store's
// conditional update is the exclusive gate: an alert triggers at most
// once in its lifetime. Running more than one evaluator process against
// the same store is not coordinated and remains unsafe.
type Evaluator struct {
	store    store.MarketDataStore
	notifier notify.Notifier
	hub      *stream.Hub
	logger   zerolog.Logger

	// Tracks in-flight async notification dispatches for shutdown.
	wg sync.WaitGroup
}

// NewEvaluator creates an alert evaluator. The hub is optional; when set,
// triggered alerts are also pushed to the owning user's private topic.
func NewEvaluator(dataStore store.MarketDataStore, notifier notify.Notifier, hub *stream.Hub, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		store:    dataStore,
		notifier: notifier,
		hub:      hub,
		logger:   logger.With().Str("component", "alert-evaluator").Logger(),
	}
}

// Evaluate loads the ACTIVE alerts for a symbol, applies each trigger
// predicate against the current price and transitions the ones that fire.
// Per-alert failures are logged and never abort the rest of the batch.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string, currentPrice float64) {
	alerts, err := e.store.ActiveAlertsBySymbol(ctx, symbol)
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", symbol).Msg("Loading active alerts failed")
		return
	}

	for i := range alerts {
		alert := alerts[i]
		if !ShouldTrigger(&alert, currentPrice) {
			continue
		}
		e.trigger(ctx, alert, currentPrice)
	}
}

// ShouldTrigger applies an alert's predicate to the current price.
// Threshold comparisons are boundary inclusive; percent predicates are
// disabled when the creation baseline is zero.
func ShouldTrigger(alert *models.PriceAlert, currentPrice float64) bool {
	if !alert.IsActive() {
		return false
	}

	switch alert.Type {
	case models.AlertAbove:
		return currentPrice >= alert.TargetValue
	case models.AlertBelow:
		return currentPrice <= alert.TargetValue
	case models.AlertPercentUp:
		if alert.BaselineValue == 0 {
			return false
		}
		return (currentPrice-alert.BaselineValue)/alert.BaselineValue*100 >= alert.TargetValue
	case models.AlertPercentDown:
		if alert.BaselineValue == 0 {
			return false
		}
		return (alert.BaselineValue-currentPrice)/alert.BaselineValue*100 >= alert.TargetValue
	default:
		return false
	}
}

// trigger performs the terminal state transition and dispatches the
// best-effort notification.
func (e *Evaluator) trigger(ctx context.Context, alert models.PriceAlert, currentPrice float64) {
	now := time.Now()
	if err := e.store.TriggerAlert(ctx, alert.ID, currentPrice, now); err != nil {
		if apperrors.Is(err, apperrors.ErrAlertNotActive) {
			// Another update won the transition; nothing to do.
			return
		}
		e.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("Alert transition failed")
		return
	}

	logging.LogAlert(e.logger, alert.ID, alert.Symbol, string(alert.Type), currentPrice)

	// Recipient is loaded eagerly so the async dispatch does no store I/O.
	recipient, err := e.store.AlertRecipient(ctx, alert.UserID)
	if err != nil {
		e.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("No recipient for triggered alert")
		return
	}

	if e.hub != nil {
		e.hub.SendToUser(alert.UserID, "alerts", map[string]interface{}{
			"alertId": alert.ID,
			"symbol":  alert.Symbol,
			"type":    string(alert.Type),
			"target":  alert.TargetValue,
			"price":   currentPrice,
		})
	}

	e.dispatchNotification(alert, *recipient, currentPrice)
}

// dispatchNotification sends the notification asynchronously. The caller
// never blocks on delivery; the result only feeds the notificationSent
// flag, and a failed or lost delivery is not retried.
func (e *Evaluator) dispatchNotification(alert models.PriceAlert, recipient models.AlertRecipient, currentPrice float64) {
	if e.notifier == nil {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ok := e.notifier.SendAlertNotification(ctx, notify.AlertNotification{
			RecipientEmail: recipient.Email,
			RecipientName:  recipient.Name,
			Symbol:         alert.Symbol,
			AlertTypeLabel: alert.Type.Label(),
			TargetValue:    alert.TargetValue,
			CurrentValue:   currentPrice,
		})
		if !ok {
			e.logger.Warn().Str("alert_id", alert.ID).Msg("Alert notification not delivered")
			return
		}

		if err := e.store.MarkAlertNotified(ctx, alert.ID); err != nil {
			e.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("Recording notification flag failed")
		}
	}()
}

// Wait blocks until in-flight notification dispatches settle. Called
// during shutdown.
func (e *Evaluator) Wait() {
	e.wg.Wait()
}
