// Package source contains clients for external market data providers.
// Each client isolates one provider's wire format quirks; a bad record
// never aborts an entire fetch and one source's outage never blocks
// another's.
package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mintstack/internal/config"
	apperrors "mintstack/internal/errors"
	"mintstack/internal/logging"
	"mintstack/internal/models"
)

const rateSourceName = "central-bank"

// RateClient fetches daily currency rates from the central-bank XML feed.
type RateClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewRateClient creates a rate client with the provider's own timeout budget.
func NewRateClient(cfg config.RateProviderConfig, logger zerolog.Logger) *RateClient {
	return &RateClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logging.WithSource(logger, rateSourceName),
	}
}

// rateDocument mirrors the provider's XML envelope.
type rateDocument struct {
	XMLName    xml.Name    `xml:"Tarih_Date"`
	Currencies []rateEntry `xml:"Currency"`
}

type rateEntry struct {
	Code            string `xml:"CurrencyCode,attr"`
	ForexBuying     string `xml:"ForexBuying"`
	ForexSelling    string `xml:"ForexSelling"`
	BanknoteBuying  string `xml:"BanknoteBuying"`
	BanknoteSelling string `xml:"BanknoteSelling"`
}

// FetchRates retrieves and normalizes the rate sheet for one date.
// Entries without a forex buying rate are skipped rather than stored
// with a zero placeholder.
func (c *RateClient) FetchRates(ctx context.Context, date time.Time) ([]models.CanonicalRate, error) {
	url := fmt.Sprintf("%s/%s/%s.xml", c.baseURL, date.Format("200601"), date.Format("02012006"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewSourceError(rateSourceName, "building request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewSourceError(rateSourceName, "fetching rate sheet", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewSourceError(rateSourceName,
			fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, url), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewSourceError(rateSourceName, "reading response body", err)
	}

	return c.parseRates(body, date)
}

func (c *RateClient) parseRates(data []byte, date time.Time) ([]models.CanonicalRate, error) {
	var doc rateDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewSourceError(rateSourceName, "parsing rate XML", err)
	}

	now := time.Now()
	rates := make([]models.CanonicalRate, 0, len(doc.Currencies))
	for _, entry := range doc.Currencies {
		// A missing primary buying rate disqualifies the whole entry.
		if strings.TrimSpace(entry.ForexBuying) == "" {
			c.logger.Debug().Str("code", entry.Code).Msg("Skipping entry without forex buying rate")
			continue
		}

		rates = append(rates, models.CanonicalRate{
			Code:        strings.TrimSpace(entry.Code),
			BuyingRate:  parseLocaleFloat(entry.ForexBuying),
			SellingRate: parseLocaleFloat(entry.ForexSelling),
			Source:      models.SourceCentralBank,
			FetchedAt:   now,
			RateDate:    date,
		})
	}

	c.logger.Debug().Int("total", len(doc.Currencies)).Int("kept", len(rates)).Msg("Parsed rate sheet")
	return rates, nil
}

// parseLocaleFloat converts a comma-decimal numeric string to float64.
// Unparseable values fall back to zero instead of failing the entry.
func parseLocaleFloat(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
