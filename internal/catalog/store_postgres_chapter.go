// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/database/schema"
	"github.com/tessera-app/tessera/internal/platform/dberr"
	"github.com/tessera-app/tessera/pkg/uuidv7"
)

// hotRecheckDelay is the near-term next-check applied when a source delivers
// a brand new chapter: more releases usually follow shortly.
const hotRecheckDelay = 5 * time.Minute

func (repository *PostgresRepository) HasChapter(ctx context.Context, seriesID string, number float64) (bool, error) {
	c := schema.CatalogChapter
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND %s = $2)`,
		c.Table, c.SeriesID, c.ChapterNumber)

	var exists bool
	if err := repository.db.QueryRow(ctx, query, seriesID, number).Scan(&exists); err != nil {
		return false, dberr.Wrap(err, "has_chapter")
	}
	return exists, nil
}

func (repository *PostgresRepository) ListChapterNumbers(ctx context.Context, seriesID string) ([]float64, error) {
	c := schema.CatalogChapter
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY %s ASC`,
		c.ChapterNumber, c.Table, c.SeriesID, c.ChapterNumber)

	rows, err := repository.db.Query(ctx, query, seriesID)
	if err != nil {
		return nil, dberr.Wrap(err, "list_chapter_numbers")
	}
	defer rows.Close()

	numbers := make([]float64, 0)
	for rows.Next() {
		var number float64
		if err := rows.Scan(&number); err != nil {
			return nil, dberr.Wrap(err, "scan_chapter_number")
		}
		numbers = append(numbers, number)
	}
	return numbers, rows.Err()
}

func (repository *PostgresRepository) NextChapterCreatedAfter(ctx context.Context, seriesID string, number float64) (*time.Time, error) {
	c := schema.CatalogChapter
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE %s = $1 AND %s > $2 ORDER BY %s ASC LIMIT 1
	`, c.CreatedAt, c.Table, c.SeriesID, c.ChapterNumber, c.ChapterNumber)

	var createdAt time.Time
	err := repository.db.QueryRow(ctx, query, seriesID, number).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, dberr.Wrap(err, "next_chapter_created_after")
	}
	return &createdAt, nil
}

func (repository *PostgresRepository) CountChaptersCreatedSince(ctx context.Context, seriesID string, since time.Time) (int, error) {
	c := schema.CatalogChapter
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s = $1 AND %s >= $2`,
		c.Table, c.SeriesID, c.CreatedAt)

	var count int
	if err := repository.db.QueryRow(ctx, query, seriesID, since).Scan(&count); err != nil {
		return 0, dberr.Wrap(err, "count_recent_chapters")
	}
	return count, nil
}

func (repository *PostgresRepository) ListSourceOptions(ctx context.Context, chapterID string) ([]SourceOption, error) {
	cs := schema.CatalogChapterSource
	ss := schema.CatalogSeriesSource
	query := fmt.Sprintf(`
		SELECT cs.%s, cs.%s, cs.%s, cs.%s, cs.%s, cs.%s,
		       ss.%s, ss.%s
		FROM %s cs
		JOIN %s ss ON cs.%s = ss.%s
		WHERE cs.%s = $1
	`,
		cs.ID, cs.ChapterID, cs.SeriesSourceID, cs.URL, cs.IsAvailable, cs.DiscoveredAt,
		ss.SourceName, ss.TrustScore,
		cs.Table, ss.Table, cs.SeriesSourceID, ss.ID, cs.ChapterID,
	)

	rows, err := repository.db.Query(ctx, query, chapterID)
	if err != nil {
		return nil, dberr.Wrap(err, "list_source_options")
	}
	defer rows.Close()

	options := make([]SourceOption, 0)
	for rows.Next() {
		option := SourceOption{}
		err := rows.Scan(
			&option.ID, &option.ChapterID, &option.SeriesSourceID, &option.URL,
			&option.IsAvailable, &option.DiscoveredAt,
			&option.SourceName, &option.TrustScore,
		)
		if err != nil {
			return nil, dberr.Wrap(err, "scan_source_option")
		}
		options = append(options, option)
	}
	return options, rows.Err()
}

// ApplyIngest runs the whole per-chapter write set inside one transaction so
// redelivered ingest jobs replay safely.
func (repository *PostgresRepository) ApplyIngest(ctx context.Context, apply IngestApply) (*IngestOutcome, error) {
	tx, err := repository.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, dberr.Wrap(err, "begin_ingest")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	outcome := &IngestOutcome{}

	// 1. Logical chapter upsert. The chapter number is the conflict key and
	// never changes; title and publish date may improve on re-discovery.
	c := schema.CatalogChapter
	chapterQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (%s, %s) DO UPDATE SET
			%s = COALESCE(EXCLUDED.%s, %s.%s),
			%s = COALESCE(EXCLUDED.%s, %s.%s),
			%s = now()
		RETURNING %s, (xmax = 0)
	`,
		c.Table, c.ID, c.SeriesID, c.ChapterNumber, c.Title, c.PublishedAt, c.CreatedAt, c.UpdatedAt,
		c.SeriesID, c.ChapterNumber,
		c.Title, c.Title, c.Table[len("catalog."):], c.Title,
		c.PublishedAt, c.PublishedAt, c.Table[len("catalog."):], c.PublishedAt,
		c.UpdatedAt,
		c.ID,
	)

	err = tx.QueryRow(ctx, chapterQuery,
		uuidv7.New(), apply.SeriesID, apply.Number, apply.Title, apply.PublishedAt,
	).Scan(&outcome.ChapterID, &outcome.ChapterCreated)
	if err != nil {
		return nil, dberr.Wrap(err, "upsert_chapter")
	}

	// 2. Chapter source upsert: re-discovery refreshes URL and availability,
	// first discovery creates the link.
	cs := schema.CatalogChapterSource
	sourceQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, true, $5, now())
		ON CONFLICT (%s, %s) DO UPDATE SET
			%s = EXCLUDED.%s,
			%s = true
		RETURNING (xmax = 0)
	`,
		cs.Table, cs.ID, cs.ChapterID, cs.SeriesSourceID, cs.URL, cs.IsAvailable, cs.DiscoveredAt, cs.CreatedAt,
		cs.SeriesSourceID, cs.ChapterID,
		cs.URL, cs.URL,
		cs.IsAvailable,
	)

	err = tx.QueryRow(ctx, sourceQuery,
		uuidv7.New(), outcome.ChapterID, apply.SeriesSourceID, apply.URL, apply.DiscoveredAt,
	).Scan(&outcome.SourceCreated)
	if err != nil {
		return nil, dberr.Wrap(err, "upsert_chapter_source")
	}

	// 3. First discovery by this source: bump the chapter counter and
	// promote the source to the hot tier with a near-term recheck. A source
	// that just released usually releases again soon.
	if outcome.SourceCreated {
		ss := schema.CatalogSeriesSource
		bumpQuery := fmt.Sprintf(`
			UPDATE %s SET %s = %s + 1, %s = '%s', %s = $2, %s = now() WHERE %s = $1
		`,
			ss.Table, ss.ChapterCount, ss.ChapterCount, ss.Priority,
			constants.PriorityHot, ss.NextCheckAt, ss.UpdatedAt, ss.ID,
		)
		if _, err := tx.Exec(ctx, bumpQuery, apply.SeriesSourceID, time.Now().UTC().Add(hotRecheckDelay)); err != nil {
			return nil, dberr.Wrap(err, "bump_series_source")
		}
	}

	// 4. Release feed window upsert.
	if err := repository.upsertFeedEntry(ctx, tx, apply); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Wrap(err, "commit_ingest")
	}
	return outcome, nil
}
