// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/database/schema"
	"github.com/tessera-app/tessera/internal/platform/dberr"
	"github.com/tessera-app/tessera/pkg/uuidv7"
)

// PostgresRepository implements [SeriesRepository] and [ChapterRepository]
// on a shared pgx pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates the catalog repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// seriesColumns is the SELECT list shared by all series lookups.
func seriesColumns() string {
	s := schema.CatalogSeries
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
		s.ID, s.Title, s.NormalizedTitle, s.AltTitles, s.Description, s.Type,
		s.Status, s.ContentRating, s.Tags, s.CoverURL, s.ExternalID,
		s.CreatedAt, s.UpdatedAt)
}

func scanSeries(row interface{ Scan(...any) error }) (*Series, error) {
	series := &Series{}
	err := row.Scan(
		&series.ID, &series.Title, &series.NormalizedTitle, &series.AltTitles,
		&series.Description, &series.Type, &series.Status, &series.ContentRating,
		&series.Tags, &series.CoverURL, &series.ExternalID,
		&series.CreatedAt, &series.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return series, nil
}

func (repository *PostgresRepository) GetSeriesByID(ctx context.Context, id string) (*Series, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		seriesColumns(), schema.CatalogSeries.Table, schema.CatalogSeries.ID)

	series, err := scanSeries(repository.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, dberr.Wrap(err, "get_series_by_id")
	}
	return series, nil
}

func (repository *PostgresRepository) GetSeriesByExternalID(ctx context.Context, externalID string) (*Series, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		seriesColumns(), schema.CatalogSeries.Table, schema.CatalogSeries.ExternalID)

	series, err := scanSeries(repository.db.QueryRow(ctx, query, externalID))
	if err != nil {
		return nil, dberr.Wrap(err, "get_series_by_external_id")
	}
	return series, nil
}

func (repository *PostgresRepository) GetSeriesByNormalizedTitle(ctx context.Context, normalized string) (*Series, error) {
	// Oldest row wins if historical data ever contains normalized-title
	// duplicates; the canonicalizer lock prevents new ones.
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY %s ASC LIMIT 1`,
		seriesColumns(), schema.CatalogSeries.Table,
		schema.CatalogSeries.NormalizedTitle, schema.CatalogSeries.CreatedAt)

	series, err := scanSeries(repository.db.QueryRow(ctx, query, normalized))
	if err != nil {
		return nil, dberr.Wrap(err, "get_series_by_normalized_title")
	}
	return series, nil
}

func (repository *PostgresRepository) CreateSeries(ctx context.Context, series *Series) error {
	s := schema.CatalogSeries
	if series.ID == "" {
		series.ID = uuidv7.New()
	}
	now := time.Now().UTC()
	series.CreatedAt = now
	series.UpdatedAt = now

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		s.Table, s.ID, s.Title, s.NormalizedTitle, s.AltTitles, s.Description,
		s.Type, s.Status, s.ContentRating, s.Tags, s.CoverURL, s.ExternalID,
		s.CreatedAt, s.UpdatedAt,
	)

	_, err := repository.db.Exec(ctx, query,
		series.ID, series.Title, series.NormalizedTitle, series.AltTitles,
		series.Description, series.Type, series.Status, series.ContentRating,
		series.Tags, series.CoverURL, series.ExternalID,
		series.CreatedAt, series.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "create_series")
	}
	return nil
}

func (repository *PostgresRepository) UpdateSeriesMetadata(ctx context.Context, series *Series) error {
	s := schema.CatalogSeries
	series.UpdatedAt = time.Now().UTC()

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $2, %s = $3, %s = $4, %s = $5, %s = $6, %s = $7, %s = $8, %s = $9
		WHERE %s = $1
	`,
		s.Table, s.AltTitles, s.Description, s.Status, s.ContentRating,
		s.Tags, s.CoverURL, s.Type, s.UpdatedAt, s.ID,
	)

	tag, err := repository.db.Exec(ctx, query,
		series.ID, series.AltTitles, series.Description, series.Status,
		series.ContentRating, series.Tags, series.CoverURL, series.Type,
		series.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "update_series_metadata")
	}
	if tag.RowsAffected() == 0 {
		return dberr.ErrNotFound
	}
	return nil
}

// # Series Sources

func sourceColumns() string {
	s := schema.CatalogSeriesSource
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
		s.ID, s.SeriesID, s.SourceName, s.SourceID, s.SourceURL, s.TrustScore,
		s.FailureCount, s.ChapterCount, s.Priority, s.NextCheckAt,
		s.LastPolledAt, s.IsActive, s.IsPrimary, s.CreatedAt, s.UpdatedAt)
}

func scanSource(row interface{ Scan(...any) error }) (*SeriesSource, error) {
	source := &SeriesSource{}
	err := row.Scan(
		&source.ID, &source.SeriesID, &source.SourceName, &source.SourceID,
		&source.SourceURL, &source.TrustScore, &source.FailureCount,
		&source.ChapterCount, &source.Priority, &source.NextCheckAt,
		&source.LastPolledAt, &source.IsActive, &source.IsPrimary,
		&source.CreatedAt, &source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return source, nil
}

func (repository *PostgresRepository) GetSourceByID(ctx context.Context, id string) (*SeriesSource, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		sourceColumns(), schema.CatalogSeriesSource.Table, schema.CatalogSeriesSource.ID)

	source, err := scanSource(repository.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, dberr.Wrap(err, "get_source_by_id")
	}
	return source, nil
}

func (repository *PostgresRepository) GetSourceByRef(ctx context.Context, sourceName, sourceID string) (*SeriesSource, error) {
	s := schema.CatalogSeriesSource
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2`,
		sourceColumns(), s.Table, s.SourceName, s.SourceID)

	source, err := scanSource(repository.db.QueryRow(ctx, query, sourceName, sourceID))
	if err != nil {
		return nil, dberr.Wrap(err, "get_source_by_ref")
	}
	return source, nil
}

func (repository *PostgresRepository) UpsertSource(ctx context.Context, source *SeriesSource) (*SeriesSource, error) {
	existing, err := repository.GetSourceByRef(ctx, source.SourceName, source.SourceID)
	if err != nil && apperr.As(err) != dberr.ErrNotFound {
		return nil, err
	}

	if existing != nil {
		// Once bound, a (source name, source id) pair belongs to its series
		// forever. Rebinding would silently merge two different works.
		if existing.SeriesID != source.SeriesID {
			return nil, apperr.Conflict(fmt.Sprintf(
				"source %s/%s is already bound to another series",
				source.SourceName, source.SourceID))
		}

		s := schema.CatalogSeriesSource
		query := fmt.Sprintf(`UPDATE %s SET %s = $2, %s = $3, %s = now() WHERE %s = $1`,
			s.Table, s.SourceURL, s.IsActive, s.UpdatedAt, s.ID)
		if _, err := repository.db.Exec(ctx, query, existing.ID, source.SourceURL, true); err != nil {
			return nil, dberr.Wrap(err, "refresh_source")
		}
		existing.SourceURL = source.SourceURL
		existing.IsActive = true
		return existing, nil
	}

	s := schema.CatalogSeriesSource
	if source.ID == "" {
		source.ID = uuidv7.New()
	}
	if source.Priority == "" {
		source.Priority = constants.PriorityHot
	}
	now := time.Now().UTC()
	if source.NextCheckAt.IsZero() {
		source.NextCheckAt = now
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, $9, $10, now(), now())
	`,
		s.Table, s.ID, s.SeriesID, s.SourceName, s.SourceID, s.SourceURL,
		s.TrustScore, s.FailureCount, s.ChapterCount, s.Priority,
		s.NextCheckAt, s.IsActive, s.IsPrimary, s.CreatedAt, s.UpdatedAt,
	)

	_, err = repository.db.Exec(ctx, query,
		source.ID, source.SeriesID, source.SourceName, source.SourceID,
		source.SourceURL, source.TrustScore, source.Priority,
		source.NextCheckAt, true, source.IsPrimary,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "create_source")
	}

	source.IsActive = true
	source.CreatedAt = now
	source.UpdatedAt = now
	return source, nil
}

func (repository *PostgresRepository) ListActiveSources(ctx context.Context, seriesID string) ([]SeriesSource, error) {
	s := schema.CatalogSeriesSource
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = true ORDER BY %s DESC`,
		sourceColumns(), s.Table, s.SeriesID, s.IsActive, s.TrustScore)

	rows, err := repository.db.Query(ctx, query, seriesID)
	if err != nil {
		return nil, dberr.Wrap(err, "list_active_sources")
	}
	defer rows.Close()

	sources := make([]SeriesSource, 0)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, dberr.Wrap(err, "scan_active_source")
		}
		sources = append(sources, *source)
	}
	return sources, rows.Err()
}

// # Poll Bookkeeping

func (repository *PostgresRepository) RecordPollSuccess(ctx context.Context, sourceID string, polledAt, nextCheckAt time.Time) error {
	s := schema.CatalogSeriesSource
	query := fmt.Sprintf(`
		UPDATE %s SET %s = 0, %s = $2, %s = $3, %s = now() WHERE %s = $1
	`, s.Table, s.FailureCount, s.LastPolledAt, s.NextCheckAt, s.UpdatedAt, s.ID)

	if _, err := repository.db.Exec(ctx, query, sourceID, polledAt, nextCheckAt); err != nil {
		return dberr.Wrap(err, "record_poll_success")
	}
	return nil
}

func (repository *PostgresRepository) IncrementFailure(ctx context.Context, sourceID string) (int, error) {
	s := schema.CatalogSeriesSource
	query := fmt.Sprintf(`
		UPDATE %s SET %s = %s + 1, %s = now() WHERE %s = $1 RETURNING %s
	`, s.Table, s.FailureCount, s.FailureCount, s.UpdatedAt, s.ID, s.FailureCount)

	var count int
	if err := repository.db.QueryRow(ctx, query, sourceID).Scan(&count); err != nil {
		return 0, dberr.Wrap(err, "increment_failure")
	}
	return count, nil
}

func (repository *PostgresRepository) DemoteSource(ctx context.Context, sourceID string, nextCheckAt time.Time) error {
	s := schema.CatalogSeriesSource
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $2, %s = $3, %s = now() WHERE %s = $1
	`, s.Table, s.Priority, s.NextCheckAt, s.UpdatedAt, s.ID)

	if _, err := repository.db.Exec(ctx, query, sourceID, constants.PriorityCold, nextCheckAt); err != nil {
		return dberr.Wrap(err, "demote_source")
	}
	return nil
}

// # Scheduler Queries

func (repository *PostgresRepository) ListDueSources(ctx context.Context, now time.Time, limit int) ([]SeriesSource, error) {
	s := schema.CatalogSeriesSource
	// Hot sources first, then the longest-overdue.
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s = true AND %s <= $1
		ORDER BY (%s = '%s') DESC, %s ASC
		LIMIT $2
	`,
		sourceColumns(), s.Table, s.IsActive, s.NextCheckAt,
		s.Priority, constants.PriorityHot, s.NextCheckAt,
	)

	rows, err := repository.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, dberr.Wrap(err, "list_due_sources")
	}
	defer rows.Close()

	sources := make([]SeriesSource, 0, limit)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, dberr.Wrap(err, "scan_due_source")
		}
		sources = append(sources, *source)
	}
	return sources, rows.Err()
}

func (repository *PostgresRepository) DemoteIdleHotSources(ctx context.Context, idleBefore time.Time) (int64, error) {
	s := schema.CatalogSeriesSource
	query := fmt.Sprintf(`
		UPDATE %s SET %s = '%s', %s = now()
		WHERE %s = '%s' AND %s IS NOT NULL AND %s < $1
	`,
		s.Table, s.Priority, constants.PriorityCold, s.UpdatedAt,
		s.Priority, constants.PriorityHot, s.LastPolledAt, s.LastPolledAt,
	)

	tag, err := repository.db.Exec(ctx, query, idleBefore)
	if err != nil {
		return 0, dberr.Wrap(err, "demote_idle_hot_sources")
	}
	return tag.RowsAffected(), nil
}
