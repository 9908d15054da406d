// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package notify

import (
	"context"
	"fmt"

	"github.com/tessera-app/tessera/internal/platform/database/schema"
	"github.com/tessera-app/tessera/internal/platform/dberr"
)

// restrictedRatings are content ratings hidden from safe-browsing users.
var restrictedRatings = []string{"suggestive", "erotica", "pornographic"}

// Resolve implements [RecipientResolver]: subscribers of the series with
// notifications enabled, filtered by safe-browsing against the series'
// content rating, split into premium and standard lanes.
func (store *PostgresStore) Resolve(ctx context.Context, seriesID string) (*Recipients, error) {
	sub := schema.LibrarySubscription
	account := schema.UsersAccount
	series := schema.CatalogSeries

	query := fmt.Sprintf(`
		SELECT a.%s, a.%s
		FROM %s sub
		JOIN %s a ON a.%s = sub.%s
		JOIN %s s ON s.%s = sub.%s
		WHERE sub.%s = $1
		  AND sub.%s = true
		  AND NOT (a.%s = true AND COALESCE(s.%s, 'safe') = ANY($2))
	`,
		account.ID, account.IsPremium,
		sub.Table,
		account.Table, account.ID, sub.UserID,
		series.Table, series.ID, sub.SeriesID,
		sub.SeriesID,
		sub.NotifyEnabled,
		account.SafeBrowsing, series.ContentRating,
	)

	rows, err := store.db.Query(ctx, query, seriesID, restrictedRatings)
	if err != nil {
		return nil, dberr.Wrap(err, "resolve_recipients")
	}
	defer rows.Close()

	recipients := &Recipients{}
	for rows.Next() {
		var userID string
		var isPremium bool
		if err := rows.Scan(&userID, &isPremium); err != nil {
			return nil, dberr.Wrap(err, "scan_recipient")
		}
		if isPremium {
			recipients.Premium = append(recipients.Premium, userID)
		} else {
			recipients.Standard = append(recipients.Standard, userID)
		}
	}
	return recipients, rows.Err()
}
