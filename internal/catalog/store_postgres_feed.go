// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/database/schema"
	"github.com/tessera-app/tessera/internal/platform/dberr"
	"github.com/tessera-app/tessera/pkg/uuidv7"
)

// upsertFeedEntry maintains the 24-hour release-feed aggregate for
// (series, chapter number) inside the ingest transaction.
//
// An open window entry accumulates sources without duplicating ones already
// listed; outside the window a fresh entry is created.
func (repository *PostgresRepository) upsertFeedEntry(ctx context.Context, tx pgx.Tx, apply IngestApply) error {
	f := schema.FeedEntry

	selectQuery := fmt.Sprintf(`
		SELECT %s, %s FROM %s
		WHERE %s = $1 AND %s = $2 AND %s > now() - interval '%d hours'
		ORDER BY %s DESC LIMIT 1
		FOR UPDATE
	`,
		f.ID, f.Sources, f.Table,
		f.SeriesID, f.ChapterNumber, f.FirstSeenAt, int(constants.FeedWindow.Hours()),
		f.FirstSeenAt,
	)

	var entryID string
	var rawSources []byte
	err := tx.QueryRow(ctx, selectQuery, apply.SeriesID, apply.Number).Scan(&entryID, &rawSources)

	switch {
	case err == nil:
		var sources []FeedSource
		if err := json.Unmarshal(rawSources, &sources); err != nil {
			return dberr.Wrap(err, "decode_feed_sources")
		}

		merged, changed := AppendSource(sources, FeedSource{
			SeriesSourceID: apply.SeriesSourceID,
			SourceName:     apply.SourceName,
			URL:            apply.URL,
			DiscoveredAt:   apply.DiscoveredAt,
		})
		if !changed {
			// Same source re-reporting inside the window: idempotent no-op.
			return nil
		}
		encoded, err := json.Marshal(merged)
		if err != nil {
			return dberr.Wrap(err, "encode_feed_sources")
		}

		updateQuery := fmt.Sprintf(`UPDATE %s SET %s = $2, %s = $3 WHERE %s = $1`,
			f.Table, f.Sources, f.LastSeenAt, f.ID)
		if _, err := tx.Exec(ctx, updateQuery, entryID, encoded, apply.DiscoveredAt); err != nil {
			return dberr.Wrap(err, "append_feed_source")
		}
		return nil

	case errors.Is(err, pgx.ErrNoRows):
		encoded, err := json.Marshal([]FeedSource{{
			SeriesSourceID: apply.SeriesSourceID,
			SourceName:     apply.SourceName,
			URL:            apply.URL,
			DiscoveredAt:   apply.DiscoveredAt,
		}})
		if err != nil {
			return dberr.Wrap(err, "encode_feed_sources")
		}

		insertQuery := fmt.Sprintf(`
			INSERT INTO %s (%s, %s, %s, %s, %s, %s)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, f.Table, f.ID, f.SeriesID, f.ChapterNumber, f.Sources, f.FirstSeenAt, f.LastSeenAt)

		if _, err := tx.Exec(ctx, insertQuery,
			uuidv7.New(), apply.SeriesID, apply.Number, encoded, apply.DiscoveredAt); err != nil {
			return dberr.Wrap(err, "create_feed_entry")
		}
		return nil

	default:
		return dberr.Wrap(err, "load_feed_entry")
	}
}

// ListRecentFeedEntries returns the newest feed entries across all series,
// most recent first. The notification API and client feeds read this.
func (repository *PostgresRepository) ListRecentFeedEntries(ctx context.Context, limit int) ([]FeedEntry, error) {
	f := schema.FeedEntry
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s FROM %s ORDER BY %s DESC LIMIT $1
	`, f.ID, f.SeriesID, f.ChapterNumber, f.Sources, f.FirstSeenAt, f.LastSeenAt, f.Table, f.LastSeenAt)

	rows, err := repository.db.Query(ctx, query, limit)
	if err != nil {
		return nil, dberr.Wrap(err, "list_recent_feed_entries")
	}
	defer rows.Close()

	entries := make([]FeedEntry, 0, limit)
	for rows.Next() {
		entry := FeedEntry{}
		var rawSources []byte
		if err := rows.Scan(&entry.ID, &entry.SeriesID, &entry.ChapterNumber,
			&rawSources, &entry.FirstSeenAt, &entry.LastSeenAt); err != nil {
			return nil, dberr.Wrap(err, "scan_feed_entry")
		}
		if err := json.Unmarshal(rawSources, &entry.Sources); err != nil {
			return nil, dberr.Wrap(err, "decode_feed_sources")
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
