// Package model defines the data records used throughout the
// application. Records are plain structs — relationships (tags) are
// loaded eagerly by the repository where needed, never lazily.
package model

import "time"

// The three-way partition of a user's catalog. A movie is always in
// exactly one list; "deleted" is a soft state reached only through
// deletion, never at creation.
const (
	ListMy      = "my"
	ListLater   = "later"
	ListDeleted = "deleted"
)

// Movie is one catalogued film, owned by exactly one user.
//
// Invariant maintained by the catalog service: when Watched is false,
// Rating and WatchedAt are nil. When Watched is true, WatchedAt is
// required.
//
// Nullable columns use pointers so "absent" and "zero" stay
// distinguishable in JSON: a nil Year serializes as null, which is what
// clients key off.
type Movie struct {
	ID              string     `json:"id"`
	UserID          string     `json:"-"`
	List            string     `json:"list"`
	Title           string     `json:"title"`
	Year            *int       `json:"year"`
	RuntimeMin      *int       `json:"runtimeMin"`
	GenresCsv       string     `json:"genresCsv"`
	Description     string     `json:"description"`
	Notes           string     `json:"notes"`
	Watched         bool       `json:"watched"`
	Rating          *int       `json:"rating"`
	WatchedAt       *string    `json:"watchedAt"` // date, YYYY-MM-DD
	PosterPath      string     `json:"posterPath,omitempty"`
	URL             string     `json:"url"`
	DeletedFromList *string    `json:"deletedFromList,omitempty"` // list held before soft delete
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
	AddedAt         time.Time  `json:"addedAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	Tags            []Tag      `json:"tags,omitempty"` // eager-loaded associations
}

// ValidList reports whether s names one of the three catalog lists.
func ValidList(s string) bool {
	return s == ListMy || s == ListLater || s == ListDeleted
}

// ValidActiveList reports whether s names a list a movie can be created
// in or moved to. "deleted" is reachable only through soft delete.
func ValidActiveList(s string) bool {
	return s == ListMy || s == ListLater
}

// DuplicateMovie is the summary returned when a mutation is blocked by
// duplicate detection.
type DuplicateMovie struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Year  *int   `json:"year"`
	List  string `json:"list"`
}

// CatalogFilters is the read-only facet over one list of a user's
// catalog: the year range present, the distinct genre tokens, and the
// tags attached to at least one movie in the list.
type CatalogFilters struct {
	Genres  []string     `json:"genres"`
	Tags    []TagSummary `json:"tags"`
	YearMin *int         `json:"yearMin"`
	YearMax *int         `json:"yearMax"`
}

// TabCounts is the per-list movie count plus the public user count
// shown on the catalog tabs.
type TabCounts struct {
	My      int `json:"my"`
	Later   int `json:"later"`
	Deleted int `json:"deleted"`
	Users   int `json:"users"`
}
