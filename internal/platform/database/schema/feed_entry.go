package schema

// FeedEntryTable represents the 'feed.entry' table
type FeedEntryTable struct {
	Table         string
	ID            string
	SeriesID      string
	ChapterNumber string
	Sources       string
	FirstSeenAt   string
	LastSeenAt    string
}

// FeedEntry is the schema definition for feed.entry
var FeedEntry = FeedEntryTable{
	Table:         "feed.entry",
	ID:            "id",
	SeriesID:      "seriesid",
	ChapterNumber: "chapternumber",
	Sources:       "sources",
	FirstSeenAt:   "firstseenat",
	LastSeenAt:    "lastseenat",
}
