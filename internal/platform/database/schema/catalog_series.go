package schema

// CatalogSeriesTable represents the 'catalog.series' table
type CatalogSeriesTable struct {
	Table           string
	ID              string
	Title           string
	NormalizedTitle string
	AltTitles       string
	Description     string
	Type            string
	Status          string
	ContentRating   string
	Tags            string
	CoverURL        string
	ExternalID      string
	CreatedAt       string
	UpdatedAt       string
}

// CatalogSeries is the schema definition for catalog.series
var CatalogSeries = CatalogSeriesTable{
	Table:           "catalog.series",
	ID:              "id",
	Title:           "title",
	NormalizedTitle: "normalizedtitle",
	AltTitles:       "alttitles",
	Description:     "description",
	Type:            "type",
	Status:          "status",
	ContentRating:   "contentrating",
	Tags:            "tags",
	CoverURL:        "coverurl",
	ExternalID:      "externalid",
	CreatedAt:       "createdat",
	UpdatedAt:       "updatedat",
}

func (t CatalogSeriesTable) Columns() []string {
	return []string{
		t.ID, t.Title, t.NormalizedTitle, t.AltTitles, t.Description, t.Type,
		t.Status, t.ContentRating, t.Tags, t.CoverURL, t.ExternalID,
		t.CreatedAt, t.UpdatedAt,
	}
}
