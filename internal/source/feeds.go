package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mintstack/internal/config"
	apperrors "mintstack/internal/errors"
	"mintstack/internal/logging"
	"mintstack/internal/models"
)

const feedSourceName = "news-feed"

// feedDateFormats are the publish date layouts tried in order before
// falling back to the fetch time.
var feedDateFormats = []string{
	time.RFC1123Z, // Mon, 02 Jan 2006 15:04:05 -0700
	time.RFC1123,  // Mon, 02 Jan 2006 15:04:05 MST
}

// FeedClient fetches news items from RSS feeds, one primary URL per
// category with an optional backup tried after a primary failure.
type FeedClient struct {
	client   *http.Client
	maxItems int
	logger   zerolog.Logger
}

// NewFeedClient creates a feed client with the provider's own timeout budget.
func NewFeedClient(cfg config.NewsProviderConfig, logger zerolog.Logger) *FeedClient {
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 10
	}
	return &FeedClient{
		client:   &http.Client{Timeout: cfg.Timeout},
		maxItems: maxItems,
		logger:   logging.WithSource(logger, feedSourceName),
	}
}

type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string        `xml:"title"`
	Description string        `xml:"description"`
	Link        string        `xml:"link"`
	PubDate     string        `xml:"pubDate"`
	Enclosure   rssEnclosure  `xml:"enclosure"`
	Content     []rssMediaURL `xml:"content"`
	Thumbnail   []rssMediaURL `xml:"thumbnail"`
}

type rssEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

type rssMediaURL struct {
	URL string `xml:"url,attr"`
}

// FetchCategory retrieves and normalizes items for one category. On
// primary failure the backup URL (if configured) is attempted before
// giving up on the category.
func (c *FeedClient) FetchCategory(ctx context.Context, feed config.FeedConfig) ([]models.NewsItem, error) {
	items, err := c.fetchFeed(ctx, feed.PrimaryURL, feed)
	if err == nil {
		return items, nil
	}

	if feed.BackupURL == "" {
		return nil, err
	}

	c.logger.Warn().Err(err).Str("category", feed.Category).Msg("Primary feed failed, trying backup")
	items, backupErr := c.fetchFeed(ctx, feed.BackupURL, feed)
	if backupErr != nil {
		return nil, apperrors.NewSourceError(feedSourceName,
			fmt.Sprintf("primary and backup feeds failed for %s", feed.Category), backupErr)
	}
	return items, nil
}

func (c *FeedClient) fetchFeed(ctx context.Context, url string, feed config.FeedConfig) ([]models.NewsItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewSourceError(feedSourceName, "building request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewSourceError(feedSourceName, "fetching feed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewSourceError(feedSourceName,
			fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, url), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewSourceError(feedSourceName, "reading feed body", err)
	}

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, apperrors.NewSourceError(feedSourceName, "parsing feed XML", err)
	}

	now := time.Now()
	items := make([]models.NewsItem, 0, c.maxItems)
	for _, raw := range doc.Channel.Items {
		if len(items) >= c.maxItems {
			break
		}

		title := strings.TrimSpace(stripHTML(raw.Title))
		if title == "" {
			continue
		}

		items = append(items, models.NewsItem{
			ID:          uuid.NewString(),
			Title:       title,
			Summary:     strings.TrimSpace(stripHTML(raw.Description)),
			SourceURL:   strings.TrimSpace(raw.Link),
			SourceName:  feed.SourceName,
			ImageURL:    extractImageURL(raw),
			Category:    feed.Category,
			PublishedAt: parsePublishDate(raw.PubDate, now),
		})
	}

	return items, nil
}

// extractImageURL tries, in order, an image-typed enclosure, a
// media:content tag, then a media:thumbnail tag.
func extractImageURL(item rssItem) string {
	if item.Enclosure.URL != "" && strings.HasPrefix(item.Enclosure.Type, "image") {
		return item.Enclosure.URL
	}
	for _, m := range item.Content {
		if m.URL != "" {
			return m.URL
		}
	}
	for _, m := range item.Thumbnail {
		if m.URL != "" {
			return m.URL
		}
	}
	return ""
}

// parsePublishDate tries the known feed date layouts before falling back
// to the fetch time.
func parsePublishDate(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	for _, layout := range feedDateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return fallback
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// feedEntities is the small fixed set of HTML entities decoded from
// feed descriptions.
var feedEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
)

func stripHTML(s string) string {
	return feedEntities.Replace(htmlTagPattern.ReplaceAllString(s, ""))
}
