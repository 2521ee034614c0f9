package model

import "time"

// User statuses. Only active users can log in or appear in the public
// directory.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User is a registered account. PasswordHash is a bcrypt hash and is
// never serialized.
//
// NotificationsReadAt is the feed read watermark: notifications from
// followed users created after it count as unread.
type User struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Name                string     `json:"name"`
	About               string     `json:"about"`
	Gender              string     `json:"gender"` // "m", "f" or empty
	BirthDate           string     `json:"birth_date"` // date, YYYY-MM-DD, may be empty
	AvatarPath          string     `json:"avatar_path,omitempty"`
	IsPublic            bool       `json:"is_public"`
	Status              string     `json:"-"`
	NotificationsReadAt *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"-"`
}

// UserSummary is the public directory / feed shape of a user.
type UserSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	AvatarPath  string `json:"avatar_path,omitempty"`
	MoviesCount int    `json:"movies_count,omitempty"` // non-deleted movies, directory only
}
