package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mintstack/internal/config"
	apperrors "mintstack/internal/errors"
	"mintstack/internal/logging"
	"mintstack/internal/models"
)

const quoteSourceName = "quote-api"

// QuoteClient fetches live prices and historical OHLCV bars from the
// chart-style quote API.
type QuoteClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewQuoteClient creates a quote client with the provider's own timeout budget.
func NewQuoteClient(cfg config.QuoteProviderConfig, logger zerolog.Logger) *QuoteClient {
	return &QuoteClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logging.WithSource(logger, quoteSourceName),
	}
}

// chartResponse mirrors the provider's chart JSON. Pointer slices handle
// null entries on non-trading days.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
				Adjclose []struct {
					Adjclose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchQuote retrieves the live market price for one symbol.
func (c *QuoteClient) FetchQuote(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/%s?interval=1d&range=1d", c.baseURL, symbol)

	resp, err := c.get(ctx, url)
	if err != nil {
		return 0, err
	}

	if len(resp.Chart.Result) == 0 {
		return 0, apperrors.NewSourceError(quoteSourceName,
			fmt.Sprintf("no result for %s", symbol), nil)
	}

	return resp.Chart.Result[0].Meta.RegularMarketPrice, nil
}

// FetchHistory retrieves daily bars for a symbol between from and to.
// Indexes whose close price is null are skipped; a fetch with zero valid
// points returns an empty set, not an error.
func (c *QuoteClient) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceHistoryPoint, error) {
	url := fmt.Sprintf("%s/%s?period1=%d&period2=%d&interval=1d",
		c.baseURL, symbol, from.Unix(), to.Unix())

	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	if len(resp.Chart.Result) == 0 {
		return []models.PriceHistoryPoint{}, nil
	}

	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return []models.PriceHistoryPoint{}, nil
	}
	quote := result.Indicators.Quote[0]

	var adjclose []*float64
	if len(result.Indicators.Adjclose) > 0 {
		adjclose = result.Indicators.Adjclose[0].Adjclose
	}

	points := make([]models.PriceHistoryPoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// Null close marks a non-trading day; other fields may be
		// present or absent independently.
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}

		point := models.PriceHistoryPoint{
			Symbol: symbol,
			Date:   time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Close:  *quote.Close[i],
		}
		point.Open = deref(quote.Open, i)
		point.High = deref(quote.High, i)
		point.Low = deref(quote.Low, i)
		point.AdjustedClose = deref(adjclose, i)
		if point.AdjustedClose == 0 {
			point.AdjustedClose = point.Close
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			point.Volume = *quote.Volume[i]
		}

		points = append(points, point)
	}

	c.logger.Debug().Str("symbol", symbol).
		Int("total", len(result.Timestamp)).Int("kept", len(points)).
		Msg("Parsed history response")
	return points, nil
}

func (c *QuoteClient) get(ctx context.Context, url string) (*chartResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewSourceError(quoteSourceName, "building request", err)
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewSourceError(quoteSourceName, "fetching chart", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, apperrors.NewSourceError(quoteSourceName,
			fmt.Sprintf("unexpected status %d", httpResp.StatusCode), nil)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperrors.NewSourceError(quoteSourceName, "reading response body", err)
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewSourceError(quoteSourceName, "parsing chart JSON", err)
	}

	if resp.Chart.Error != nil {
		return nil, apperrors.NewSourceError(quoteSourceName,
			fmt.Sprintf("provider error %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description), nil)
	}

	return &resp, nil
}

func deref(values []*float64, i int) float64 {
	if i < len(values) && values[i] != nil {
		return *values[i]
	}
	return 0
}
