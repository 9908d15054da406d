package schema

// CatalogSeriesSourceTable represents the 'catalog.seriessource' table
type CatalogSeriesSourceTable struct {
	Table        string
	ID           string
	SeriesID     string
	SourceName   string
	SourceID     string
	SourceURL    string
	TrustScore   string
	FailureCount string
	ChapterCount string
	Priority     string
	NextCheckAt  string
	LastPolledAt string
	IsActive     string
	IsPrimary    string
	CreatedAt    string
	UpdatedAt    string
}

// CatalogSeriesSource is the schema definition for catalog.seriessource
var CatalogSeriesSource = CatalogSeriesSourceTable{
	Table:        "catalog.seriessource",
	ID:           "id",
	SeriesID:     "seriesid",
	SourceName:   "sourcename",
	SourceID:     "sourceid",
	SourceURL:    "sourceurl",
	TrustScore:   "trustscore",
	FailureCount: "failurecount",
	ChapterCount: "chaptercount",
	Priority:     "priority",
	NextCheckAt:  "nextcheckat",
	LastPolledAt: "lastpolledat",
	IsActive:     "isactive",
	IsPrimary:    "isprimary",
	CreatedAt:    "createdat",
	UpdatedAt:    "updatedat",
}

func (t CatalogSeriesSourceTable) Columns() []string {
	return []string{
		t.ID, t.SeriesID, t.SourceName, t.SourceID, t.SourceURL, t.TrustScore,
		t.FailureCount, t.ChapterCount, t.Priority, t.NextCheckAt,
		t.LastPolledAt, t.IsActive, t.IsPrimary, t.CreatedAt, t.UpdatedAt,
	}
}
