package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/nvoropaev/movielog/internal/repository"
)

var _ repository.FollowRepository = (*DB)(nil)

// Follow records the edge. Re-following is a no-op thanks to the
// composite primary key.
func (db *DB) Follow(ctx context.Context, followerID, followeeID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_follows (follower_id, followee_id, created_at)
		 VALUES (?, ?, ?)`,
		followerID, followeeID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: following user: %w", err)
	}
	return nil
}

// Unfollow removes the edge; unfollowing a user never followed is a
// no-op.
func (db *DB) Unfollow(ctx context.Context, followerID, followeeID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_follows WHERE follower_id = ? AND followee_id = ?`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unfollowing user: %w", err)
	}
	return nil
}

// FolloweeIDs returns who the user follows, newest follow first.
func (db *DB) FolloweeIDs(ctx context.Context, followerID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT followee_id FROM user_follows
		 WHERE follower_id = ?
		 ORDER BY created_at DESC`,
		followerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing followees: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning followee id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating followees: %w", err)
	}
	return ids, nil
}
