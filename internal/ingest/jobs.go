package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mintstack/internal/alert"
	"mintstack/internal/config"
	"mintstack/internal/logging"
	"mintstack/internal/source"
	"mintstack/internal/store"
	"mintstack/internal/stream"
	"mintstack/pkg/utils"
)

// Job names.
const (
	JobRates   = "rates"
	JobQuotes  = "quotes"
	JobHistory = "history"
	JobNews    = "news"
)

// Ingestor wires the source clients to the store, hub and evaluator and
// implements one job per data category.
type Ingestor struct {
	cfg       *config.Config
	rates     *source.RateClient
	quotes    *source.QuoteClient
	feeds     *source.FeedClient
	store     store.MarketDataStore
	hub       *stream.Hub
	evaluator *alert.Evaluator
	logger    zerolog.Logger
	now       func() time.Time
}

// NewIngestor creates the ingestion pipeline.
func NewIngestor(
	cfg *config.Config,
	rates *source.RateClient,
	quotes *source.QuoteClient,
	feeds *source.FeedClient,
	dataStore store.MarketDataStore,
	hub *stream.Hub,
	evaluator *alert.Evaluator,
	logger zerolog.Logger,
) *Ingestor {
	return &Ingestor{
		cfg:       cfg,
		rates:     rates,
		quotes:    quotes,
		feeds:     feeds,
		store:     dataStore,
		hub:       hub,
		evaluator: evaluator,
		logger:    logger.With().Str("component", "ingest").Logger(),
		now:       time.Now,
	}
}

// RegisterJobs registers all ingestion jobs with the scheduler.
func (in *Ingestor) RegisterJobs(s *Scheduler) {
	s.Register(Job{
		Name:        JobRates,
		Interval:    in.cfg.Schedule.RateInterval,
		Run:         in.IngestRates,
		InitialLoad: in.cfg.Schedule.InitialLoad,
	})
	s.Register(Job{
		Name:     JobQuotes,
		Interval: in.cfg.Schedule.QuoteInterval,
		Run:      in.IngestQuotes,
	})
	s.Register(Job{
		Name:     JobHistory,
		Interval: in.cfg.Schedule.HistoryInterval,
		Run:      in.IngestHistory,
	})
	s.Register(Job{
		Name:        JobNews,
		Interval:    in.cfg.Schedule.NewsInterval,
		Run:         in.IngestNews,
		InitialLoad: in.cfg.Schedule.InitialLoad,
	})
}

// IngestRates fetches the central-bank rate sheet, persists it and fans
// out each rate. Updates are always published; the evaluator only runs
// for rates whose value actually changed.
func (in *Ingestor) IngestRates(ctx context.Context) error {
	// The central bank only publishes rate sheets on weekdays.
	if !utils.IsWeekday(in.now()) {
		in.logger.Debug().Msg("Skipping rate ingestion outside weekdays")
		return nil
	}

	start := time.Now()
	fetched, err := in.rates.FetchRates(ctx, in.now())
	logging.LogFetch(in.logger, "central-bank", len(fetched), time.Since(start), err)
	if err != nil {
		return err
	}

	if err := in.store.SaveRates(ctx, fetched); err != nil {
		return err
	}

	for _, rate := range fetched {
		prev, known := in.hub.LastPrice(stream.UpdateCurrency, rate.Code)
		changed := !known || prev != rate.BuyingRate

		in.hub.Publish(stream.UpdateCurrency, rate.Code, rate.BuyingRate, map[string]interface{}{
			"sellingRate": rate.SellingRate,
			"source":      string(rate.Source),
			"rateDate":    rate.RateDate.Format("2006-01-02"),
		})

		if changed {
			in.evaluator.Evaluate(ctx, rate.Code, rate.BuyingRate)
		}
	}

	in.logger.Info().Int("rates", len(fetched)).Msg("Rate ingestion completed")
	return nil
}

// IngestQuotes fetches the live price for every configured symbol. One
// symbol's failure never aborts the rest of the batch.
func (in *Ingestor) IngestQuotes(ctx context.Context) error {
	if !utils.IsMarketOpen(in.now()) {
		in.logger.Debug().Msg("Skipping quote ingestion outside market hours")
		return nil
	}

	for _, symbol := range in.cfg.Schedule.Symbols {
		log := logging.WithSymbol(in.logger, symbol)

		price, err := in.quotes.FetchQuote(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Msg("Quote fetch failed")
			continue
		}

		changed, err := in.store.UpdateInstrumentPrice(ctx, symbol, price)
		if err != nil {
			log.Error().Err(err).Msg("Quote persist failed")
			continue
		}

		in.hub.Publish(stream.UpdateStock, symbol, price, nil)

		if changed {
			in.evaluator.Evaluate(ctx, symbol, price)
		}
	}

	return nil
}

// IngestHistory backfills daily bars for every configured symbol.
// Existing (symbol, date) rows are skipped.
func (in *Ingestor) IngestHistory(ctx context.Context) error {
	days := in.cfg.Schedule.HistoryDays
	if days <= 0 {
		days = 7
	}
	to := in.now()
	from := to.AddDate(0, 0, -days)

	for _, symbol := range in.cfg.Schedule.Symbols {
		points, err := in.quotes.FetchHistory(ctx, symbol, from, to)
		if err != nil {
			in.logger.Warn().Err(err).Str("symbol", symbol).Msg("History fetch failed")
			continue
		}

		inserted := 0
		for _, point := range points {
			ok, err := in.store.UpsertPriceHistoryIfAbsent(ctx, point)
			if err != nil {
				in.logger.Error().Err(err).Str("symbol", symbol).Msg("History persist failed")
				continue
			}
			if ok {
				inserted++
			}
		}

		in.logger.Debug().Str("symbol", symbol).
			Int("fetched", len(points)).Int("inserted", inserted).
			Msg("History ingestion completed")
	}

	return nil
}

// IngestNews fetches every configured feed category. One category's
// failure never prevents the others from being fetched; duplicate source
// URLs are skipped.
func (in *Ingestor) IngestNews(ctx context.Context) error {
	for _, feed := range in.cfg.Feeds {
		start := time.Now()
		items, err := in.feeds.FetchCategory(ctx, feed)
		logging.LogFetch(in.logger, "news-feed", len(items), time.Since(start), err)
		if err != nil {
			in.logger.Warn().Err(err).Str("category", feed.Category).Msg("Feed fetch failed")
			continue
		}

		saved := 0
		for _, item := range items {
			exists, err := in.store.NewsExistsByURL(ctx, item.SourceURL)
			if err != nil {
				in.logger.Error().Err(err).Str("url", item.SourceURL).Msg("News lookup failed")
				continue
			}
			if exists {
				continue
			}
			if err := in.store.SaveNews(ctx, item); err != nil {
				in.logger.Error().Err(err).Str("url", item.SourceURL).Msg("News persist failed")
				continue
			}
			saved++
		}

		in.logger.Info().Str("category", feed.Category).
			Int("fetched", len(items)).Int("saved", saved).
			Msg("News ingestion completed")
	}

	return nil
}
