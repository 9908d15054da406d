// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/constants"
)

// fetchTimeout bounds one upstream request end to end.
const fetchTimeout = 20 * time.Second

// JSONAdapter polls sources that expose a JSON chapter feed at the
// subscription's source URL.
type JSONAdapter struct {
	name   string
	client *http.Client
}

// NewJSONAdapter creates an adapter for one JSON-feed source family.
func NewJSONAdapter(name string, client *http.Client) *JSONAdapter {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &JSONAdapter{name: name, client: client}
}

func (adapter *JSONAdapter) Name() string { return adapter.name }

// jsonFeed is the wire shape of the upstream feed.
type jsonFeed struct {
	Series *struct {
		Title         string   `json:"title"`
		ExternalID    *string  `json:"external_id"`
		AltTitles     []string `json:"alt_titles"`
		Description   *string  `json:"description"`
		CoverURL      *string  `json:"cover_url"`
		Type          string   `json:"type"`
		Status        *string  `json:"status"`
		Genres        []string `json:"genres"`
		Tags          []string `json:"tags"`
		ContentRating *string  `json:"content_rating"`
	} `json:"series"`
	Chapters []struct {
		Number      float64    `json:"number"`
		Label       string     `json:"label"`
		Title       *string    `json:"title"`
		URL         string     `json:"url"`
		PublishedAt *time.Time `json:"published_at"`
	} `json:"chapters"`
}

// Fetch downloads and decodes the subscription's feed.
func (adapter *JSONAdapter) Fetch(ctx context.Context, source catalog.SeriesSource) (*Result, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, source.SourceURL, nil)
	if err != nil {
		return nil, apperr.Validation("malformed source url: " + source.SourceURL)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", constants.AppName+"/"+constants.AppVersion)

	response, err := adapter.client.Do(request)
	if err != nil {
		return nil, apperr.SourceUnavailable(adapter.name, err)
	}
	defer func() { _ = response.Body.Close() }()

	if err := classifyStatus(adapter.name, response.StatusCode); err != nil {
		return nil, err
	}

	var feed jsonFeed
	if err := json.NewDecoder(response.Body).Decode(&feed); err != nil {
		return nil, apperr.SourceUnavailable(adapter.name, fmt.Errorf("decode feed: %w", err))
	}

	result := &Result{Chapters: make([]ScrapedChapter, 0, len(feed.Chapters))}
	for _, row := range feed.Chapters {
		number := row.Number
		if number <= 0 {
			// Some feeds only carry a display label; parse the number out.
			parsed, ok := ParseChapterNumber(row.Label)
			if !ok {
				continue
			}
			number = parsed
		}
		if row.URL == "" {
			continue
		}
		result.Chapters = append(result.Chapters, ScrapedChapter{
			Number:      number,
			Title:       row.Title,
			URL:         row.URL,
			PublishedAt: row.PublishedAt,
		})
	}

	if feed.Series != nil && feed.Series.Title != "" {
		result.Series = &ScrapedSeries{
			Title:         feed.Series.Title,
			ExternalID:    feed.Series.ExternalID,
			AltTitles:     feed.Series.AltTitles,
			Description:   feed.Series.Description,
			CoverURL:      feed.Series.CoverURL,
			Type:          feed.Series.Type,
			Status:        feed.Series.Status,
			Genres:        feed.Series.Genres,
			Tags:          feed.Series.Tags,
			ContentRating: feed.Series.ContentRating,
		}
	}

	return result, nil
}

// classifyStatus maps upstream HTTP statuses onto the retry taxonomy.
// 429 and 403 are treated as anti-bot blocks deserving a long cooldown.
func classifyStatus(source string, status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests || status == http.StatusForbidden:
		return apperr.SourceBlocked(source, fmt.Errorf("http %d", status))
	default:
		return apperr.SourceUnavailable(source, fmt.Errorf("http %d", status))
	}
}
