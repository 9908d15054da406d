package schema

// UsersAccountTable represents the 'users.account' table
type UsersAccountTable struct {
	Table                 string
	ID                    string
	IsPremium             string
	SafeBrowsing          string
	GlobalPreferredSource string
	CreatedAt             string
}

// UsersAccount is the schema definition for users.account
var UsersAccount = UsersAccountTable{
	Table:                 "users.account",
	ID:                    "id",
	IsPremium:             "ispremium",
	SafeBrowsing:          "safebrowsing",
	GlobalPreferredSource: "globalpreferredsource",
	CreatedAt:             "createdat",
}
