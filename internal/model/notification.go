package model

import "time"

// Notification actions. movie_added fires once per new movie
// (create/import/copy); movie_rated fires when a save changes a
// non-null rating.
const (
	ActionMovieAdded = "movie_added"
	ActionMovieRated = "movie_rated"
)

// Notification is an append-only activity event. UserID is the movie
// owner (the actor), not a follower. Never updated or deleted.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	MovieID   string    `json:"-"`
	Action    string    `json:"action"`
	Rating    *int      `json:"rating"` // present only for movie_rated
	CreatedAt time.Time `json:"created_at"`
}

// ValidAction reports whether s is a known notification action.
func ValidAction(s string) bool {
	return s == ActionMovieAdded || s == ActionMovieRated
}

// FeedItem is a notification hydrated with its actor and movie for the
// follower-facing feed.
type FeedItem struct {
	ID        string        `json:"id"`
	Action    string        `json:"action"`
	CreatedAt time.Time     `json:"created_at"`
	Rating    *int          `json:"rating"`
	User      *UserSummary  `json:"user"`
	Movie     *MovieSummary `json:"movie"`
}

// MovieSummary is the reduced movie shape embedded in feed items.
type MovieSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	PosterPath string `json:"posterPath,omitempty"`
}
