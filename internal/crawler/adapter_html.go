// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/constants"
)

// Selectors describes where an HTML source keeps its chapter listing.
type Selectors struct {
	// Row matches one chapter entry in the listing.
	Row string
	// Link matches the anchor inside a row; its href is the chapter URL and
	// its text the chapter label. Empty means the row itself is the anchor.
	Link string
	// Date optionally matches a release timestamp inside the row.
	Date string
	// DateLayout is the time.Parse layout for Date text.
	DateLayout string
}

// HTMLAdapter polls sources that only expose an HTML chapter listing,
// scraping it with configured CSS selectors.
type HTMLAdapter struct {
	name      string
	client    *http.Client
	selectors Selectors
}

// NewHTMLAdapter creates an adapter for one HTML source family.
func NewHTMLAdapter(name string, client *http.Client, selectors Selectors) *HTMLAdapter {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &HTMLAdapter{name: name, client: client, selectors: selectors}
}

func (adapter *HTMLAdapter) Name() string { return adapter.name }

// Fetch downloads the listing page and scrapes chapter rows out of it.
func (adapter *HTMLAdapter) Fetch(ctx context.Context, source catalog.SeriesSource) (*Result, error) {
	base, err := url.Parse(source.SourceURL)
	if err != nil {
		return nil, apperr.Validation("malformed source url: " + source.SourceURL)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, source.SourceURL, nil)
	if err != nil {
		return nil, apperr.Validation("malformed source url: " + source.SourceURL)
	}
	request.Header.Set("User-Agent", constants.AppName+"/"+constants.AppVersion)

	response, err := adapter.client.Do(request)
	if err != nil {
		return nil, apperr.SourceUnavailable(adapter.name, err)
	}
	defer func() { _ = response.Body.Close() }()

	if err := classifyStatus(adapter.name, response.StatusCode); err != nil {
		return nil, err
	}

	document, err := goquery.NewDocumentFromReader(response.Body)
	if err != nil {
		return nil, apperr.SourceUnavailable(adapter.name, fmt.Errorf("parse listing: %w", err))
	}

	result := &Result{}
	document.Find(adapter.selectors.Row).Each(func(_ int, row *goquery.Selection) {
		anchor := row
		if adapter.selectors.Link != "" {
			anchor = row.Find(adapter.selectors.Link).First()
		}

		href, ok := anchor.Attr("href")
		if !ok || href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}

		label := strings.TrimSpace(anchor.Text())
		number, ok := ParseChapterNumber(label)
		if !ok {
			return
		}

		chapter := ScrapedChapter{
			Number: number,
			URL:    resolved.String(),
		}
		if label != "" {
			chapter.Title = &label
		}
		if adapter.selectors.Date != "" {
			raw := strings.TrimSpace(row.Find(adapter.selectors.Date).First().Text())
			if parsed, err := time.Parse(adapter.selectors.DateLayout, raw); err == nil {
				chapter.PublishedAt = &parsed
			}
		}

		result.Chapters = append(result.Chapters, chapter)
	})

	return result, nil
}
