package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
)

var _ repository.TagRepository = (*DB)(nil)

// CreateTag inserts a new tag for its owner.
func (db *DB) CreateTag(ctx context.Context, t *model.Tag) error {
	t.ID = xid.New().String()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tags (id, user_id, name, color, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Name, t.Color, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating tag: %w", err)
	}
	return nil
}

// GetTagByID fetches one tag scoped to its owner.
func (db *DB) GetTagByID(ctx context.Context, userID, id string) (*model.Tag, error) {
	var t model.Tag
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, name, color, created_at, updated_at
		 FROM tags WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("tag")
		}
		return nil, fmt.Errorf("sqlite: getting tag %s: %w", id, err)
	}
	return &t, nil
}

// ListTags returns one newest-first page of the user's tags plus the
// total count.
func (db *DB) ListTags(ctx context.Context, userID string, page, pageSize int) ([]model.Tag, int, error) {
	var total int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tags WHERE user_id = ?`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting tags: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, name, color, created_at, updated_at
		 FROM tags WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing tags: %w", err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return tags, total, nil
}

// UpdateTag persists name and color changes.
func (db *DB) UpdateTag(ctx context.Context, t *model.Tag) error {
	t.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE tags SET name = ?, color = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		t.Name, t.Color, t.UpdatedAt, t.ID, t.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating tag %s: %w", t.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("tag")
	}
	return nil
}

// DeleteTag removes a tag; its movie associations go with it via the
// foreign key cascade.
func (db *DB) DeleteTag(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM tags WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting tag %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("tag")
	}
	return nil
}

// FilterOwned narrows ids down to tags the user actually owns, so a
// sync request cannot attach somebody else's tag.
func (db *DB) FilterOwned(ctx context.Context, userID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := []any{userID}
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT id FROM tags WHERE user_id = ? AND id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: filtering owned tags: %w", err)
	}
	defer rows.Close()

	owned := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning owned tag id: %w", err)
		}
		owned[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating owned tag ids: %w", err)
	}

	// Preserve the caller's order and drop duplicates.
	out := make([]string, 0, len(owned))
	for _, id := range ids {
		if owned[id] {
			out = append(out, id)
			owned[id] = false
		}
	}
	return out, nil
}
