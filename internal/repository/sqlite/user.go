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

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, email, password_hash, name, about, gender,
	birth_date, avatar_path, is_public, status, notifications_read_at,
	created_at, updated_at`

func scanUser(s interface{ Scan(...any) error }) (*model.User, error) {
	var (
		u      model.User
		readAt sql.NullTime
	)
	err := s.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Name, &u.About,
		&u.Gender, &u.BirthDate, &u.AvatarPath, &u.IsPublic, &u.Status,
		&readAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if readAt.Valid {
		v := readAt.Time
		u.NotificationsReadAt = &v
	}
	return &u, nil
}

// CreateUser inserts a new account. Uniqueness of username and email is
// checked by the service before this runs; the UNIQUE constraints are
// the backstop.
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	u.ID = xid.New().String()
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Name, u.About,
		u.Gender, u.BirthDate, u.AvatarPath, u.IsPublic, u.Status,
		u.NotificationsReadAt, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user")
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetActiveByEmail resolves login credentials; disabled accounts do not
// match.
func (db *DB) GetActiveByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email = ? COLLATE NOCASE AND status = ?`,
		email, model.StatusActive)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user")
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// GetPublicUser finds an active account with a public catalog. Private
// and disabled accounts report not found rather than forbidden, so the
// response does not confirm the account exists.
func (db *DB) GetPublicUser(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id = ? AND status = ? AND is_public = 1`,
		id, model.StatusActive)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user")
		}
		return nil, fmt.Errorf("sqlite: getting public user %s: %w", id, err)
	}
	return u, nil
}

func (db *DB) UpdateUser(ctx context.Context, u *model.User) error {
	u.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET username = ?, email = ?, password_hash = ?, name = ?, about = ?,
		     gender = ?, birth_date = ?, avatar_path = ?, is_public = ?,
		     status = ?, notifications_read_at = ?, updated_at = ?
		 WHERE id = ?`,
		u.Username, u.Email, u.PasswordHash, u.Name, u.About,
		u.Gender, u.BirthDate, u.AvatarPath, u.IsPublic,
		u.Status, u.NotificationsReadAt, u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", u.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("user")
	}
	return nil
}

func (db *DB) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	return db.fieldTaken(ctx, "username", username, excludeID)
}

func (db *DB) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	return db.fieldTaken(ctx, "email", email, excludeID)
}

func (db *DB) fieldTaken(ctx context.Context, column, value, excludeID string) (bool, error) {
	query := "SELECT COUNT(*) FROM users WHERE " + column + " = ? COLLATE NOCASE"
	args := []any{value}
	if excludeID != "" {
		query += " AND id <> ?"
		args = append(args, excludeID)
	}

	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlite: checking %s uniqueness: %w", column, err)
	}
	return n > 0, nil
}

const summaryColumns = `u.id, u.username, u.name, u.avatar_path,
	(SELECT COUNT(*) FROM movies m WHERE m.user_id = u.id AND m.list <> 'deleted')`

// ListPublicUsers returns the active public directory ordered by
// username, each entry carrying its visible movie count.
func (db *DB) ListPublicUsers(ctx context.Context, q string) ([]model.UserSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM users u
	          WHERE u.status = ? AND u.is_public = 1`
	args := []any{model.StatusActive}

	if q != "" {
		query += ` AND (u.username LIKE ? ESCAPE '\' OR u.name LIKE ? ESCAPE '\')`
		p := likePattern(q)
		args = append(args, p, p)
	}
	query += " ORDER BY u.username COLLATE NOCASE ASC"

	return db.querySummaries(ctx, query, args)
}

func (db *DB) CountPublicUsers(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE status = ? AND is_public = 1`,
		model.StatusActive,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting public users: %w", err)
	}
	return n, nil
}

// Summaries loads directory entries for the given active users, ordered
// by username. Unknown ids are dropped.
func (db *DB) Summaries(ctx context.Context, ids []string) ([]model.UserSummary, error) {
	if len(ids) == 0 {
		return []model.UserSummary{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := []any{model.StatusActive}
	for _, id := range ids {
		args = append(args, id)
	}

	return db.querySummaries(ctx,
		`SELECT `+summaryColumns+` FROM users u
		 WHERE u.status = ? AND u.id IN (`+placeholders+`)
		 ORDER BY u.username COLLATE NOCASE ASC`,
		args,
	)
}

func (db *DB) querySummaries(ctx context.Context, query string, args []any) ([]model.UserSummary, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying user summaries: %w", err)
	}
	defer rows.Close()

	users := []model.UserSummary{}
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &u.AvatarPath, &u.MoviesCount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user summary: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user summaries: %w", err)
	}
	return users, nil
}
