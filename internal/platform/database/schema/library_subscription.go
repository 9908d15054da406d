package schema

// LibrarySubscriptionTable represents the 'library.subscription' table
type LibrarySubscriptionTable struct {
	Table             string
	UserID            string
	SeriesID          string
	NotifyEnabled     string
	PreferredSourceID string
	CreatedAt         string
}

// LibrarySubscription is the schema definition for library.subscription
var LibrarySubscription = LibrarySubscriptionTable{
	Table:             "library.subscription",
	UserID:            "userid",
	SeriesID:          "seriesid",
	NotifyEnabled:     "notifyenabled",
	PreferredSourceID: "preferredsourceid",
	CreatedAt:         "createdat",
}
