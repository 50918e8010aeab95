package models

import "time"

// NewsItem is one normalized news entry. SourceURL is the dedup key; items
// with an empty title after trimming are discarded during normalization.
type NewsItem struct {
	ID          string
	Title       string
	Summary     string
	SourceURL   string
	SourceName  string
	ImageURL    string
	Category    string
	PublishedAt time.Time
}
