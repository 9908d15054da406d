// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-app/tessera/internal/jobs"
	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/database/schema"
	"github.com/tessera-app/tessera/internal/platform/dberr"
)

// PostgresStore implements [Store] and [RecipientResolver] on a shared pgx
// pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates the notification store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListForChapter matches notifications by the chapter number stored in their
// metadata, using the same number formatting as the idempotency keys so 10
// and 10.0 collide as intended.
func (store *PostgresStore) ListForChapter(ctx context.Context, userIDs []string, seriesID string, chapterNumber float64) (map[string]Existing, error) {
	if len(userIDs) == 0 {
		return map[string]Existing{}, nil
	}

	n := schema.NotifyNotification
	query := fmt.Sprintf(`
		SELECT %s, %s, %s FROM %s
		WHERE %s = $1 AND %s = $2 AND %s->>'chapter_number' = $3 AND %s = ANY($4)
	`, n.ID, n.UserID, n.Priority, n.Table, n.SeriesID, n.Type, n.Metadata, n.UserID)

	rows, err := store.db.Query(ctx, query,
		seriesID, constants.NotificationTypeNewChapter,
		jobs.FormatChapterNumber(chapterNumber), userIDs)
	if err != nil {
		return nil, dberr.Wrap(err, "list_notifications_for_chapter")
	}
	defer rows.Close()

	existing := make(map[string]Existing)
	for rows.Next() {
		var id, userID string
		var priority int
		if err := rows.Scan(&id, &userID, &priority); err != nil {
			return nil, dberr.Wrap(err, "scan_notification")
		}
		existing[userID] = Existing{ID: id, Priority: priority}
	}
	return existing, rows.Err()
}

// BatchInsert persists a batch of notifications in one round trip.
func (store *PostgresStore) BatchInsert(ctx context.Context, notifications []Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	n := schema.NotifyNotification
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.Table, n.ID, n.UserID, n.SeriesID, n.Type, n.Priority, n.Title, n.Body, n.Metadata, n.CreatedAt)

	batch := &pgx.Batch{}
	for _, notification := range notifications {
		metadata, err := json.Marshal(notification.Metadata)
		if err != nil {
			return dberr.Wrap(err, "encode_notification_metadata")
		}
		batch.Queue(query,
			notification.ID, notification.UserID, notification.SeriesID,
			notification.Type, notification.Priority, notification.Title,
			notification.Body, metadata, notification.CreatedAt)
	}

	results := store.db.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range notifications {
		if _, err := results.Exec(); err != nil {
			return dberr.Wrap(err, "insert_notification")
		}
	}
	return nil
}

// BatchDelete removes superseded notifications.
func (store *PostgresStore) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	n := schema.NotifyNotification
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = ANY($1)`, n.Table, n.ID)
	if _, err := store.db.Exec(ctx, query, ids); err != nil {
		return dberr.Wrap(err, "delete_notifications")
	}
	return nil
}
