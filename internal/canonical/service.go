// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package canonical resolves scraped series metadata onto one canonical Series
per work, no matter how many sources report it or how they format it.

Architecture:

  - Resolution order, first hit wins: external-catalog id → existing
    (source name, source id) link → case-insensitive normalized-title match.
    No fuzzy matching; on no match a new Series is created.
  - All reads and writes for one normalized title run inside a named
    mutual-exclusion lock so two concurrent discoveries cannot create
    duplicate Series.
  - Metadata merges are never destructive: alt titles and tags accumulate
    as sets, and a valid cover is never downgraded to a placeholder.
*/
package canonical

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/dlock"
	"github.com/tessera-app/tessera/internal/platform/metrics"
	"github.com/tessera-app/tessera/pkg/pointer"
	"github.com/tessera-app/tessera/pkg/slug"
)

// Discovery is one scraped series sighting from a source.
type Discovery struct {
	Title         string
	SourceName    string
	SourceID      string
	SourceURL     string
	ExternalID    *string
	AltTitles     []string
	Description   *string
	CoverURL      *string
	Type          string
	Status        *string
	Genres        []string
	Tags          []string
	ContentRating *string
	Confidence    *float64
}

// EventPublisher notifies the client realtime layer that a series became
// available on a source. Implementations are external collaborators.
type EventPublisher interface {
	SeriesAvailable(ctx context.Context, series *catalog.Series, source *catalog.SeriesSource) error
}

// Service is the canonicalizer.
type Service struct {
	repo   catalog.SeriesRepository
	locker *dlock.Locker
	events EventPublisher
	logger *slog.Logger
}

// NewService wires the canonicalizer.
func NewService(repo catalog.SeriesRepository, locker *dlock.Locker, events EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		events: events,
		logger: logger,
	}
}

// defaultTrustScore is assigned to newly discovered source links; operator
// curation adjusts it later.
const defaultTrustScore = 50

// Resolve maps one discovery onto a canonical series, creating it on first
// sighting, and upserts the source link.
func (service *Service) Resolve(ctx context.Context, discovery Discovery) (*catalog.Series, error) {
	if strings.TrimSpace(discovery.Title) == "" {
		return nil, apperr.Validation("discovery title is required")
	}

	normalized := slug.Truncate(slug.From(discovery.Title), constants.TitleLockKeyMax)

	// The lock serializes all resolution for one normalized title. Losing
	// the race means another worker is resolving the same title right now;
	// backing off to the queue's retry is cheaper than spinning here.
	lease, err := service.locker.Acquire(ctx, "title:"+normalized, constants.TitleLockTTL)
	if err != nil {
		if errors.Is(err, dlock.ErrNotAcquired) {
			return nil, apperr.Overloaded("canonicalization in progress for this title")
		}
		return nil, apperr.Internal(err)
	}
	defer func() { _ = lease.Release(ctx) }()

	series, err := service.lookup(ctx, discovery, normalized)
	if err != nil {
		return nil, err
	}

	created := false
	if series == nil {
		series = service.newSeries(discovery, normalized)
		if err := service.repo.CreateSeries(ctx, series); err != nil {
			return nil, err
		}
		created = true
		metrics.SeriesCreated.Inc()
	}

	source, err := service.repo.UpsertSource(ctx, &catalog.SeriesSource{
		SeriesID:   series.ID,
		SourceName: discovery.SourceName,
		SourceID:   discovery.SourceID,
		SourceURL:  discovery.SourceURL,
		TrustScore: defaultTrustScore,
		// The first source to sight a series becomes its primary metadata
		// source until curation says otherwise.
		IsPrimary: created,
	})
	if err != nil {
		return nil, err
	}

	if !created {
		if changed := service.merge(series, discovery, source.IsPrimary); changed {
			if err := service.repo.UpdateSeriesMetadata(ctx, series); err != nil {
				return nil, err
			}
		}
		metrics.SeriesMerged.Inc()
	}

	if service.events != nil {
		// Event delivery is best-effort; the catalog write already
		// succeeded and must not be rolled back by a realtime hiccup.
		if err := service.events.SeriesAvailable(ctx, series, source); err != nil {
			service.logger.Warn("series_event_publish_failed",
				slog.String("series_id", series.ID),
				slog.Any("error", err),
			)
		}
	}

	service.logger.Info("series_resolved",
		slog.String("series_id", series.ID),
		slog.String("source", discovery.SourceName),
		slog.Bool("created", created),
	)
	return series, nil
}

// lookup applies the resolution order. A nil result with nil error means
// "no match, create".
func (service *Service) lookup(ctx context.Context, discovery Discovery, normalized string) (*catalog.Series, error) {
	// (a) External-catalog id is the strongest key.
	if discovery.ExternalID != nil && *discovery.ExternalID != "" {
		series, err := service.repo.GetSeriesByExternalID(ctx, *discovery.ExternalID)
		if err == nil {
			return series, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}

	// (b) An existing source link already decides the identity.
	source, err := service.repo.GetSourceByRef(ctx, discovery.SourceName, discovery.SourceID)
	if err == nil {
		return service.repo.GetSeriesByID(ctx, source.SeriesID)
	}
	if !isNotFound(err) {
		return nil, err
	}

	// (c) Case-insensitive exact title match via the normalized form.
	series, err := service.repo.GetSeriesByNormalizedTitle(ctx, normalized)
	if err == nil {
		return series, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	return nil, nil
}

func (service *Service) newSeries(discovery Discovery, normalized string) *catalog.Series {
	seriesType := discovery.Type
	if seriesType == "" {
		seriesType = "manga"
	}
	return &catalog.Series{
		Title:           discovery.Title,
		NormalizedTitle: normalized,
		AltTitles:       uniqueStrings(nil, discovery.AltTitles),
		Description:     discovery.Description,
		Type:            seriesType,
		Status:          discovery.Status,
		ContentRating:   discovery.ContentRating,
		Tags:            uniqueStrings(discovery.Genres, discovery.Tags),
		CoverURL:        discovery.CoverURL,
		ExternalID:      discovery.ExternalID,
	}
}

// merge folds discovery metadata into an existing series, returning whether
// anything changed. Identity fields are never touched.
func (service *Service) merge(series *catalog.Series, discovery Discovery, fromPrimary bool) bool {
	changed := false

	// Alt titles accumulate as a set; a differently-spelled main title from
	// another source is itself an alt title.
	incoming := discovery.AltTitles
	if !strings.EqualFold(discovery.Title, series.Title) {
		incoming = append([]string{discovery.Title}, incoming...)
	}
	if merged := uniqueStrings(series.AltTitles, incoming); len(merged) != len(series.AltTitles) {
		series.AltTitles = merged
		changed = true
	}

	if merged := uniqueStrings(series.Tags, append(discovery.Genres, discovery.Tags...)); len(merged) != len(series.Tags) {
		series.Tags = merged
		changed = true
	}

	if series.Description == nil && discovery.Description != nil {
		series.Description = discovery.Description
		changed = true
	}
	if series.Status == nil && discovery.Status != nil {
		series.Status = discovery.Status
		changed = true
	}
	if series.ContentRating == nil && discovery.ContentRating != nil {
		series.ContentRating = discovery.ContentRating
		changed = true
	}

	if service.shouldReplaceCover(series.CoverURL, discovery.CoverURL, fromPrimary) {
		series.CoverURL = discovery.CoverURL
		changed = true
	}

	return changed
}

// shouldReplaceCover applies the cover merge policy: prefer a non-placeholder
// image from the primary source over a valid-but-secondary one, and never
// downgrade a valid cover to a placeholder.
func (service *Service) shouldReplaceCover(current, incoming *string, fromPrimary bool) bool {
	incomingURL := strings.TrimSpace(pointer.Val(incoming))
	if incomingURL == "" || isPlaceholderCover(incomingURL) {
		return false
	}

	currentURL := strings.TrimSpace(pointer.Val(current))
	if currentURL == "" || isPlaceholderCover(currentURL) {
		return true
	}

	return fromPrimary
}

// isPlaceholderCover recognizes the stock "no cover" images sources serve.
func isPlaceholderCover(url string) bool {
	lowered := strings.ToLower(url)
	for _, marker := range []string{"placeholder", "no-cover", "nocover", "default-cover", "missing"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// uniqueStrings unions the inputs preserving first-seen order, dropping
// blanks and case-insensitive duplicates.
func uniqueStrings(existing []string, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	result := make([]string, 0, len(existing)+len(incoming))

	for _, group := range [][]string{existing, incoming} {
		for _, value := range group {
			trimmed := strings.TrimSpace(value)
			if trimmed == "" {
				continue
			}
			key := strings.ToLower(trimmed)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, trimmed)
		}
	}
	return result
}

func isNotFound(err error) bool {
	ae := apperr.As(err)
	return ae != nil && ae.Code == "NOT_FOUND"
}
