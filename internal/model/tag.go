package model

import "time"

// Tag is a user-owned label attachable to movies via a plain join
// table. Deleting a tag cascades its associations but never movies.
type Tag struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

// TagSummary is the shape tags take inside filter facets and movie
// payloads.
type TagSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}
