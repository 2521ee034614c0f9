// Package repository declares the persistence interfaces the service
// layer programs against. The sqlite subpackage provides the concrete
// implementation; tests substitute in-memory databases.
package repository

import (
	"context"
	"time"

	"github.com/nvoropaev/movielog/internal/model"
)

// Pagination defaults. pageSize is clamped to [1, MaxPageSize] with
// DefaultPageSize used when the caller sends nothing sensible.
const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// Catalog sort keys. Unknown keys are rejected by the service before
// any query runs; deleted_at_* keys requested outside the deleted list
// silently fall back to added_desc.
const (
	SortAddedDesc     = "added_desc"
	SortAddedAsc      = "added_asc"
	SortTitleAsc      = "title_asc"
	SortTitleDesc     = "title_desc"
	SortRatingDesc    = "rating_desc"
	SortRatingAsc     = "rating_asc"
	SortYearDesc      = "year_desc"
	SortYearAsc       = "year_asc"
	SortWatchedAtDesc = "watched_at_desc"
	SortWatchedAtAsc  = "watched_at_asc"
	SortDeletedAtDesc = "deleted_at_desc"
	SortDeletedAtAsc  = "deleted_at_asc"
)

var sortKeys = map[string]bool{
	SortAddedDesc:     true,
	SortAddedAsc:      true,
	SortTitleAsc:      true,
	SortTitleDesc:     true,
	SortRatingDesc:    true,
	SortRatingAsc:     true,
	SortYearDesc:      true,
	SortYearAsc:       true,
	SortWatchedAtDesc: true,
	SortWatchedAtAsc:  true,
	SortDeletedAtDesc: true,
	SortDeletedAtAsc:  true,
}

// ValidSort reports whether key names a known catalog sort.
func ValidSort(key string) bool {
	return sortKeys[key]
}

// ListQuery captures the filters for one page of a user's catalog.
// All filters are optional and ANDed together; Genres is OR-matched as
// substrings of the stored genre list, TagIDs is an existence match.
type ListQuery struct {
	List     string // one of model.List*, validated upstream
	Q        string // case-insensitive substring over title/description/notes
	YearFrom *int
	YearTo   *int
	Genres   []string
	TagIDs   []string
	Sort     string
	Page     int // 1-based
	PageSize int
}

// ExportScope selects which lists an export covers.
const ExportScopeAll = "all"

// MovieRepository persists the catalog and answers its queries.
//
// List and ListPublic return the filtered page plus the total count of
// the filtered set before pagination (computed by a separate count, not
// by counting returned rows).
type MovieRepository interface {
	Create(ctx context.Context, m *model.Movie) error
	GetByID(ctx context.Context, userID, id string) (*model.Movie, error)
	Update(ctx context.Context, m *model.Movie) error
	HardDelete(ctx context.Context, userID, id string) error

	List(ctx context.Context, userID string, q ListQuery) ([]model.Movie, int, error)
	// ListPublic serves another user's catalog: deleted movies are
	// excluded regardless of filters and deleted_at sorts are refused
	// upstream.
	ListPublic(ctx context.Context, userID string, q ListQuery) ([]model.Movie, int, error)
	CountByList(ctx context.Context, userID string) (my, later, deleted int, err error)

	// FindDuplicatesLoose is the loose match: case-insensitive exact
	// title; year constrains only when non-nil; self and deleted
	// exclusions are optional.
	FindDuplicatesLoose(ctx context.Context, userID, title string, year *int, excludeID string, excludeDeleted bool) ([]model.DuplicateMovie, error)
	// FindDuplicatesStrict requires both title (case-insensitive) and
	// year to match, and always excludes deleted movies.
	FindDuplicatesStrict(ctx context.Context, userID, title string, year int) ([]model.DuplicateMovie, error)

	// ReplaceTags swaps the full association set for a movie in one
	// transaction (delete-then-insert).
	ReplaceTags(ctx context.Context, movieID string, tagIDs []string) error
	TagsForMovie(ctx context.Context, movieID string) ([]model.Tag, error)

	// Export streams every matching movie through fn in added_at
	// descending order without materializing the set.
	Export(ctx context.Context, userID, scope, q string, fn func(*model.Movie) error) error

	// Filters aggregates the facet over the given lists of one user's
	// catalog.
	Filters(ctx context.Context, userID string, lists []string) (*model.CatalogFilters, error)
}

// TagRepository methods carry the Tag qualifier because the sqlite
// implementation shares its receiver with the movie repository.
type TagRepository interface {
	CreateTag(ctx context.Context, t *model.Tag) error
	GetTagByID(ctx context.Context, userID, id string) (*model.Tag, error)
	ListTags(ctx context.Context, userID string, page, pageSize int) ([]model.Tag, int, error)
	UpdateTag(ctx context.Context, t *model.Tag) error
	// DeleteTag removes the tag and its movie associations, never
	// movies.
	DeleteTag(ctx context.Context, userID, id string) error
	// FilterOwned returns the subset of ids that exist and belong to
	// userID, preserving input order. Unknown and foreign ids are
	// silently dropped.
	FilterOwned(ctx context.Context, userID string, ids []string) ([]string, error)
}

// FeedQuery filters the follower-facing notification feed. ActorIDs is
// the already-intersected set of followed users to read from.
type FeedQuery struct {
	ActorIDs []string
	Actions  []string // subset of model.Action*, empty means all
	DateFrom string   // YYYY-MM-DD inclusive, empty means unbounded
	DateTo   string
	Page     int
	PageSize int
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	Feed(ctx context.Context, q FeedQuery) ([]model.FeedItem, int, error)
	// CountSince counts events by the given actors created strictly
	// after since (all events when since is nil).
	CountSince(ctx context.Context, actorIDs []string, since *time.Time) (int, error)
	// ActiveActors narrows candidateIDs to those with at least one
	// notification.
	ActiveActors(ctx context.Context, candidateIDs []string) ([]string, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// GetActiveByEmail finds an active user for login.
	GetActiveByEmail(ctx context.Context, email string) (*model.User, error)
	// GetPublicUser finds an active, public user or reports not found.
	GetPublicUser(ctx context.Context, id string) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error

	// UsernameTaken/EmailTaken check uniqueness, optionally excluding
	// one user id (the caller changing their own record).
	UsernameTaken(ctx context.Context, username, excludeID string) (bool, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)

	// ListPublicUsers returns the active public directory ordered by
	// username, with non-deleted movie counts, optionally filtered by a
	// case-insensitive username/name substring.
	ListPublicUsers(ctx context.Context, q string) ([]model.UserSummary, error)
	CountPublicUsers(ctx context.Context) (int, error)
	// Summaries loads directory entries for the given ids (active users
	// only), ordered by username.
	Summaries(ctx context.Context, ids []string) ([]model.UserSummary, error)
}

// FollowRepository stores directed follow edges. They only determine
// whose notifications a user sees; the catalog engine never mutates
// them.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	FolloweeIDs(ctx context.Context, followerID string) ([]string, error)
}
