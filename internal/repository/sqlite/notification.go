package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
)

var _ repository.NotificationRepository = (*DB)(nil)

// CreateNotification records a catalog event for the actor's followers.
func (db *DB) CreateNotification(ctx context.Context, n *model.Notification) error {
	n.ID = xid.New().String()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, movie_id, action, rating, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.MovieID, n.Action, n.Rating, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating notification: %w", err)
	}
	return nil
}

func feedWhere(q repository.FeedQuery) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(q.ActorIDs)), ", ")
	conds := []string{"n.user_id IN (" + placeholders + ")"}
	args := make([]any, 0, len(q.ActorIDs)+4)
	for _, id := range q.ActorIDs {
		args = append(args, id)
	}

	if len(q.Actions) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?, ", len(q.Actions)), ", ")
		conds = append(conds, "n.action IN ("+ph+")")
		for _, a := range q.Actions {
			args = append(args, a)
		}
	}
	// Date bounds are whole days, inclusive on both ends. datetime()
	// normalizes the stored RFC 3339 text and the bound into one
	// comparable form.
	if q.DateFrom != "" {
		conds = append(conds, "datetime(n.created_at) >= datetime(?)")
		args = append(args, q.DateFrom+" 00:00:00")
	}
	if q.DateTo != "" {
		conds = append(conds, "datetime(n.created_at) <= datetime(?)")
		args = append(args, q.DateTo+" 23:59:59")
	}

	return strings.Join(conds, " AND "), args
}

// Feed returns one newest-first page of followed users' events with the
// actor and movie summaries joined in, plus the total filtered count.
// Events whose movie has since been hard-deleted keep a nil Movie.
func (db *DB) Feed(ctx context.Context, q repository.FeedQuery) ([]model.FeedItem, int, error) {
	if len(q.ActorIDs) == 0 {
		return []model.FeedItem{}, 0, nil
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = repository.DefaultPageSize
	}
	if q.PageSize > repository.MaxPageSize {
		q.PageSize = repository.MaxPageSize
	}

	where, args := feedWhere(q)

	var total int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications n WHERE "+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting feed: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT n.id, n.action, n.rating, n.created_at,
		        u.id, u.username, u.name, u.avatar_path,
		        m.id, m.title, m.poster_path
		 FROM notifications n
		 JOIN users u ON u.id = n.user_id
		 LEFT JOIN movies m ON m.id = n.movie_id
		 WHERE `+where+`
		 ORDER BY n.created_at DESC, n.id DESC
		 LIMIT ? OFFSET ?`,
		append(args, q.PageSize, (q.Page-1)*q.PageSize)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: querying feed: %w", err)
	}
	defer rows.Close()

	items := []model.FeedItem{}
	for rows.Next() {
		var (
			item        model.FeedItem
			rating      sql.NullInt64
			user        model.UserSummary
			movieID     sql.NullString
			movieTitle  sql.NullString
			moviePoster sql.NullString
		)
		err := rows.Scan(
			&item.ID, &item.Action, &rating, &item.CreatedAt,
			&user.ID, &user.Username, &user.Name, &user.AvatarPath,
			&movieID, &movieTitle, &moviePoster,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning feed row: %w", err)
		}
		if rating.Valid {
			v := int(rating.Int64)
			item.Rating = &v
		}
		item.User = &user
		if movieID.Valid {
			item.Movie = &model.MovieSummary{
				ID:         movieID.String,
				Title:      movieTitle.String,
				PosterPath: moviePoster.String,
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating feed: %w", err)
	}
	return items, total, nil
}

// CountSince counts events by the given actors newer than since. A nil
// since counts everything, which is what a never-read feed shows.
func (db *DB) CountSince(ctx context.Context, actorIDs []string, since *time.Time) (int, error) {
	if len(actorIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(actorIDs)), ", ")
	args := make([]any, 0, len(actorIDs)+1)
	for _, id := range actorIDs {
		args = append(args, id)
	}

	query := "SELECT COUNT(*) FROM notifications WHERE user_id IN (" + placeholders + ")"
	if since != nil {
		query += " AND datetime(created_at) > datetime(?)"
		args = append(args, since.UTC().Format("2006-01-02 15:04:05"))
	}

	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting unread: %w", err)
	}
	return n, nil
}

// ActiveActors narrows candidateIDs to users that have produced at
// least one event, for the feed's author filter options.
func (db *DB) ActiveActors(ctx context.Context, candidateIDs []string) ([]string, error) {
	if len(candidateIDs) == 0 {
		return []string{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(candidateIDs)), ", ")
	args := make([]any, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT DISTINCT user_id FROM notifications WHERE user_id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding active actors: %w", err)
	}
	defer rows.Close()

	active := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning actor id: %w", err)
		}
		active[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating actor ids: %w", err)
	}

	out := make([]string, 0, len(active))
	for _, id := range candidateIDs {
		if active[id] {
			out = append(out, id)
		}
	}
	return out, nil
}
