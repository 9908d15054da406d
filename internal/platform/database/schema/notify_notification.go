package schema

// NotifyNotificationTable represents the 'notify.notification' table
type NotifyNotificationTable struct {
	Table     string
	ID        string
	UserID    string
	SeriesID  string
	Type      string
	Priority  string
	Title     string
	Body      string
	Metadata  string
	CreatedAt string
	ReadAt    string
}

// NotifyNotification is the schema definition for notify.notification
var NotifyNotification = NotifyNotificationTable{
	Table:     "notify.notification",
	ID:        "id",
	UserID:    "userid",
	SeriesID:  "seriesid",
	Type:      "type",
	Priority:  "priority",
	Title:     "title",
	Body:      "body",
	Metadata:  "metadata",
	CreatedAt: "createdat",
	ReadAt:    "readat",
}

func (t NotifyNotificationTable) Columns() []string {
	return []string{
		t.ID, t.UserID, t.SeriesID, t.Type, t.Priority, t.Title, t.Body,
		t.Metadata, t.CreatedAt, t.ReadAt,
	}
}
