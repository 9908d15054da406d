package schema

// CatalogChapterSourceTable represents the 'catalog.chaptersource' table
type CatalogChapterSourceTable struct {
	Table          string
	ID             string
	ChapterID      string
	SeriesSourceID string
	URL            string
	IsAvailable    string
	DiscoveredAt   string
	CreatedAt      string
}

// CatalogChapterSource is the schema definition for catalog.chaptersource
var CatalogChapterSource = CatalogChapterSourceTable{
	Table:          "catalog.chaptersource",
	ID:             "id",
	ChapterID:      "chapterid",
	SeriesSourceID: "seriessourceid",
	URL:            "url",
	IsAvailable:    "isavailable",
	DiscoveredAt:   "discoveredat",
	CreatedAt:      "createdat",
}
