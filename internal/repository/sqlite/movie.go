package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
)

// Compile-time check that *DB satisfies the repository interface.
var _ repository.MovieRepository = (*DB)(nil)

// movieColumns is the canonical column order shared by every movie
// SELECT; scanMovie must match it exactly.
const movieColumns = `id, user_id, list, title, year, runtime_min, genres_csv,
	description, notes, watched, rating, watched_at, poster_path, url,
	deleted_from_list, deleted_at, added_at, updated_at`

func scanMovie(s interface{ Scan(...any) error }) (*model.Movie, error) {
	var (
		m               model.Movie
		year            sql.NullInt64
		runtimeMin      sql.NullInt64
		rating          sql.NullInt64
		watchedAt       sql.NullString
		deletedFromList sql.NullString
		deletedAt       sql.NullTime
	)
	err := s.Scan(
		&m.ID, &m.UserID, &m.List, &m.Title, &year, &runtimeMin, &m.GenresCsv,
		&m.Description, &m.Notes, &m.Watched, &rating, &watchedAt, &m.PosterPath,
		&m.URL, &deletedFromList, &deletedAt, &m.AddedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if year.Valid {
		v := int(year.Int64)
		m.Year = &v
	}
	if runtimeMin.Valid {
		v := int(runtimeMin.Int64)
		m.RuntimeMin = &v
	}
	if rating.Valid {
		v := int(rating.Int64)
		m.Rating = &v
	}
	if watchedAt.Valid && watchedAt.String != "" {
		v := watchedAt.String
		m.WatchedAt = &v
	}
	if deletedFromList.Valid && deletedFromList.String != "" {
		v := deletedFromList.String
		m.DeletedFromList = &v
	}
	if deletedAt.Valid {
		v := deletedAt.Time
		m.DeletedAt = &v
	}
	return &m, nil
}

// likePattern wraps s for a substring LIKE match, escaping the LIKE
// metacharacters. Queries using it must add ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// Create inserts a new movie, generating its id and stamping added_at
// and updated_at. The caller's struct is updated in place.
func (db *DB) Create(ctx context.Context, m *model.Movie) error {
	m.ID = xid.New().String()
	now := time.Now().UTC()
	m.AddedAt = now
	m.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO movies (`+movieColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.List, m.Title, m.Year, m.RuntimeMin, m.GenresCsv,
		m.Description, m.Notes, m.Watched, m.Rating, m.WatchedAt, m.PosterPath,
		m.URL, m.DeletedFromList, m.DeletedAt, m.AddedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating movie: %w", err)
	}
	return nil
}

// GetByID fetches one movie scoped to its owner, with tags loaded.
func (db *DB) GetByID(ctx context.Context, userID, id string) (*model.Movie, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	m, err := scanMovie(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("movie")
		}
		return nil, fmt.Errorf("sqlite: getting movie %s: %w", id, err)
	}

	tags, err := db.TagsForMovie(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	m.Tags = tags
	return m, nil
}

// Update persists every mutable field. Ownership is part of the WHERE
// clause, so a foreign id reports not found, same as a missing one.
func (db *DB) Update(ctx context.Context, m *model.Movie) error {
	m.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE movies
		 SET list = ?, title = ?, year = ?, runtime_min = ?, genres_csv = ?,
		     description = ?, notes = ?, watched = ?, rating = ?, watched_at = ?,
		     poster_path = ?, url = ?, deleted_from_list = ?, deleted_at = ?,
		     updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		m.List, m.Title, m.Year, m.RuntimeMin, m.GenresCsv,
		m.Description, m.Notes, m.Watched, m.Rating, m.WatchedAt,
		m.PosterPath, m.URL, m.DeletedFromList, m.DeletedAt,
		m.UpdatedAt,
		m.ID, m.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating movie %s: %w", m.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("movie")
	}
	return nil
}

// HardDelete permanently removes a movie and its tag associations in
// one transaction.
func (db *DB) HardDelete(ctx context.Context, userID, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM movie_tags WHERE movie_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting movie tags: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM movies WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting movie %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("movie")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing delete: %w", err)
	}
	return nil
}

// catalogWhere builds the shared filter predicate for listing and
// counting. publicOnly swaps the exact-list match for a
// deleted-exclusion.
func catalogWhere(userID string, q repository.ListQuery, publicOnly bool) (string, []any) {
	conds := []string{"user_id = ?"}
	args := []any{userID}

	if publicOnly {
		conds = append(conds, "list <> ?")
		args = append(args, model.ListDeleted)
	} else {
		conds = append(conds, "list = ?")
		args = append(args, q.List)
	}

	if q.Q != "" {
		p := likePattern(q.Q)
		conds = append(conds,
			`(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR notes LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}

	if q.YearFrom != nil {
		conds = append(conds, "year >= ?")
		args = append(args, *q.YearFrom)
	}
	if q.YearTo != nil {
		conds = append(conds, "year <= ?")
		args = append(args, *q.YearTo)
	}

	if len(q.Genres) > 0 {
		ors := make([]string, 0, len(q.Genres))
		for _, g := range q.Genres {
			ors = append(ors, `genres_csv LIKE ? ESCAPE '\'`)
			args = append(args, likePattern(g))
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	if len(q.TagIDs) > 0 {
		// EXISTS gives the any-tag-matches semantics without a join
		// that would need de-duplication.
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(q.TagIDs)), ", ")
		conds = append(conds,
			"EXISTS (SELECT 1 FROM movie_tags mt WHERE mt.movie_id = movies.id AND mt.tag_id IN ("+placeholders+"))")
		for _, id := range q.TagIDs {
			args = append(args, id)
		}
	}

	return strings.Join(conds, " AND "), args
}

// orderClause maps a sort key to its ORDER BY expression. The IS NULL
// leads push movies without the sorted value to the end; ties break on
// added_at descending except for the added and title sorts.
func orderClause(sort string) string {
	switch sort {
	case repository.SortAddedAsc:
		return "added_at ASC"
	case repository.SortTitleAsc:
		return "title COLLATE NOCASE ASC"
	case repository.SortTitleDesc:
		return "title COLLATE NOCASE DESC"
	case repository.SortRatingDesc:
		return "rating IS NULL, rating DESC, added_at DESC"
	case repository.SortRatingAsc:
		return "rating IS NULL, rating ASC, added_at DESC"
	case repository.SortYearDesc:
		return "year DESC, added_at DESC"
	case repository.SortYearAsc:
		return "year ASC, added_at DESC"
	case repository.SortWatchedAtDesc:
		return "watched_at IS NULL, watched_at DESC, added_at DESC"
	case repository.SortWatchedAtAsc:
		return "watched_at IS NULL, watched_at ASC, added_at DESC"
	case repository.SortDeletedAtDesc:
		return "deleted_at IS NULL, deleted_at DESC, added_at DESC"
	case repository.SortDeletedAtAsc:
		return "deleted_at IS NULL, deleted_at ASC, added_at DESC"
	default: // SortAddedDesc
		return "added_at DESC"
	}
}

// List returns one filtered, sorted page of the user's catalog plus the
// total count of the filtered set before pagination.
func (db *DB) List(ctx context.Context, userID string, q repository.ListQuery) ([]model.Movie, int, error) {
	return db.list(ctx, userID, q, false)
}

// ListPublic serves another user's catalog with deleted movies
// excluded.
func (db *DB) ListPublic(ctx context.Context, userID string, q repository.ListQuery) ([]model.Movie, int, error) {
	return db.list(ctx, userID, q, true)
}

func (db *DB) list(ctx context.Context, userID string, q repository.ListQuery, publicOnly bool) ([]model.Movie, int, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = repository.DefaultPageSize
	}
	if q.PageSize > repository.MaxPageSize {
		q.PageSize = repository.MaxPageSize
	}

	sort := q.Sort
	// Deleted-timestamp sorts only make sense on the deleted list.
	if (sort == repository.SortDeletedAtDesc || sort == repository.SortDeletedAtAsc) &&
		(publicOnly || q.List != model.ListDeleted) {
		sort = repository.SortAddedDesc
	}

	where, args := catalogWhere(userID, q, publicOnly)

	// The total reflects the filter predicate, not the returned page.
	var total int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM movies WHERE "+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting movies: %w", err)
	}

	query := "SELECT " + movieColumns + " FROM movies WHERE " + where +
		" ORDER BY " + orderClause(sort) + " LIMIT ? OFFSET ?"
	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing movies: %w", err)
	}
	defer rows.Close()

	movies := make([]model.Movie, 0, q.PageSize)
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning movie row: %w", err)
		}
		movies = append(movies, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating movies: %w", err)
	}

	if err := db.attachTags(ctx, movies); err != nil {
		return nil, 0, err
	}
	return movies, total, nil
}

// attachTags eager-loads tag associations for one page of movies with a
// single query, avoiding the per-movie N+1 pattern.
func (db *DB) attachTags(ctx context.Context, movies []model.Movie) error {
	if len(movies) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(movies)), ", ")
	args := make([]any, 0, len(movies))
	for i := range movies {
		args = append(args, movies[i].ID)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT mt.movie_id, t.id, t.user_id, t.name, t.color, t.created_at, t.updated_at
		 FROM movie_tags mt
		 JOIN tags t ON t.id = mt.tag_id
		 WHERE mt.movie_id IN (`+placeholders+`)
		 ORDER BY t.name COLLATE NOCASE ASC`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading movie tags: %w", err)
	}
	defer rows.Close()

	byMovie := make(map[string][]model.Tag)
	for rows.Next() {
		var movieID string
		var t model.Tag
		if err := rows.Scan(&movieID, &t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return fmt.Errorf("sqlite: scanning movie tag row: %w", err)
		}
		byMovie[movieID] = append(byMovie[movieID], t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating movie tags: %w", err)
	}

	for i := range movies {
		movies[i].Tags = byMovie[movies[i].ID]
	}
	return nil
}

// CountByList returns the user's per-list movie counts in one query.
func (db *DB) CountByList(ctx context.Context, userID string) (my, later, deleted int, err error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT list, COUNT(*) FROM movies WHERE user_id = ? GROUP BY list`,
		userID,
	)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("sqlite: counting by list: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var list string
		var n int
		if err := rows.Scan(&list, &n); err != nil {
			return 0, 0, 0, fmt.Errorf("sqlite: scanning list count: %w", err)
		}
		switch list {
		case model.ListMy:
			my = n
		case model.ListLater:
			later = n
		case model.ListDeleted:
			deleted = n
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, 0, fmt.Errorf("sqlite: iterating list counts: %w", err)
	}
	return my, later, deleted, nil
}

// FindDuplicatesLoose matches on case-insensitive exact title; year
// constrains only when supplied. Self-exclusion and deleted-exclusion
// are optional per call site.
func (db *DB) FindDuplicatesLoose(ctx context.Context, userID, title string, year *int, excludeID string, excludeDeleted bool) ([]model.DuplicateMovie, error) {
	conds := []string{"user_id = ?", "LOWER(title) = LOWER(?)"}
	args := []any{userID, title}

	if year != nil {
		conds = append(conds, "year = ?")
		args = append(args, *year)
	}
	if excludeID != "" {
		conds = append(conds, "id <> ?")
		args = append(args, excludeID)
	}
	if excludeDeleted {
		conds = append(conds, "list <> ?")
		args = append(args, model.ListDeleted)
	}

	return db.queryDuplicates(ctx, strings.Join(conds, " AND "), args)
}

// FindDuplicatesStrict requires an exact title and year match and
// always ignores deleted movies.
func (db *DB) FindDuplicatesStrict(ctx context.Context, userID, title string, year int) ([]model.DuplicateMovie, error) {
	return db.queryDuplicates(ctx,
		"user_id = ? AND LOWER(title) = LOWER(?) AND year = ? AND list <> ?",
		[]any{userID, title, year, model.ListDeleted},
	)
}

func (db *DB) queryDuplicates(ctx context.Context, where string, args []any) ([]model.DuplicateMovie, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, title, year, list FROM movies WHERE "+where+" ORDER BY added_at DESC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding duplicates: %w", err)
	}
	defer rows.Close()

	dups := []model.DuplicateMovie{}
	for rows.Next() {
		var d model.DuplicateMovie
		var year sql.NullInt64
		if err := rows.Scan(&d.ID, &d.Title, &year, &d.List); err != nil {
			return nil, fmt.Errorf("sqlite: scanning duplicate row: %w", err)
		}
		if year.Valid {
			v := int(year.Int64)
			d.Year = &v
		}
		dups = append(dups, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating duplicates: %w", err)
	}
	return dups, nil
}

// ReplaceTags swaps the movie's full association set. Delete-then-insert
// inside one transaction; concurrent editors of the same movie can
// still lose an update, which is the documented single-editor tradeoff.
func (db *DB) ReplaceTags(ctx context.Context, movieID string, tagIDs []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning tag sync: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM movie_tags WHERE movie_id = ?`, movieID); err != nil {
		return fmt.Errorf("sqlite: clearing movie tags: %w", err)
	}

	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO movie_tags (movie_id, tag_id) VALUES (?, ?)`,
			movieID, tagID); err != nil {
			return fmt.Errorf("sqlite: inserting movie tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing tag sync: %w", err)
	}
	return nil
}

// TagsForMovie returns the movie's tags ordered by name.
func (db *DB) TagsForMovie(ctx context.Context, movieID string) ([]model.Tag, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT t.id, t.user_id, t.name, t.color, t.created_at, t.updated_at
		 FROM movie_tags mt
		 JOIN tags t ON t.id = mt.tag_id
		 WHERE mt.movie_id = ?
		 ORDER BY t.name COLLATE NOCASE ASC`,
		movieID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading tags for movie: %w", err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return tags, nil
}

// Export streams the scoped catalog through fn ordered by added_at
// descending. Rows are scanned one at a time so a large catalog never
// sits in memory.
func (db *DB) Export(ctx context.Context, userID, scope, q string, fn func(*model.Movie) error) error {
	conds := []string{"user_id = ?"}
	args := []any{userID}

	if scope != repository.ExportScopeAll {
		conds = append(conds, "list = ?")
		args = append(args, scope)
	}
	if q != "" {
		p := likePattern(q)
		conds = append(conds,
			`(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR notes LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+movieColumns+" FROM movies WHERE "+strings.Join(conds, " AND ")+
			" ORDER BY added_at DESC",
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: exporting movies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return fmt.Errorf("sqlite: scanning export row: %w", err)
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating export rows: %w", err)
	}
	return nil
}

// sortGenres orders genre tokens case-insensitively, with the original
// casing kept for display.
func sortGenres(gs []string) {
	sort.Slice(gs, func(i, j int) bool {
		return strings.ToLower(gs[i]) < strings.ToLower(gs[j])
	})
}

// Filters aggregates the facet for the given lists: year bounds,
// distinct genre tokens and the tags in use. All queries are scoped to
// the user's rows, so cost tracks their catalog size.
func (db *DB) Filters(ctx context.Context, userID string, lists []string) (*model.CatalogFilters, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(lists)), ", ")
	args := []any{userID}
	for _, l := range lists {
		args = append(args, l)
	}
	scope := "user_id = ? AND list IN (" + placeholders + ")"

	f := &model.CatalogFilters{Genres: []string{}, Tags: []model.TagSummary{}}

	var yearMin, yearMax sql.NullInt64
	err := db.conn.QueryRowContext(ctx,
		"SELECT MIN(year), MAX(year) FROM movies WHERE "+scope+" AND year IS NOT NULL",
		args...,
	).Scan(&yearMin, &yearMax)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating years: %w", err)
	}
	if yearMin.Valid {
		v := int(yearMin.Int64)
		f.YearMin = &v
	}
	if yearMax.Valid {
		v := int(yearMax.Int64)
		f.YearMax = &v
	}

	genreRows, err := db.conn.QueryContext(ctx,
		"SELECT genres_csv FROM movies WHERE "+scope+" AND genres_csv <> ''",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating genres: %w", err)
	}
	defer genreRows.Close()

	seen := make(map[string]bool)
	for genreRows.Next() {
		var csv string
		if err := genreRows.Scan(&csv); err != nil {
			return nil, fmt.Errorf("sqlite: scanning genres row: %w", err)
		}
		for _, token := range strings.Split(csv, ",") {
			token = strings.TrimSpace(token)
			if token != "" && !seen[token] {
				seen[token] = true
				f.Genres = append(f.Genres, token)
			}
		}
	}
	if err := genreRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating genres rows: %w", err)
	}
	sortGenres(f.Genres)

	tagRows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT t.id, t.name, t.color
		 FROM tags t
		 JOIN movie_tags mt ON mt.tag_id = t.id
		 JOIN movies m ON m.id = mt.movie_id
		 WHERE m.user_id = ? AND m.list IN (`+placeholders+`)
		 ORDER BY t.name COLLATE NOCASE ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating tags: %w", err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var t model.TagSummary
		if err := tagRows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, fmt.Errorf("sqlite: scanning facet tag row: %w", err)
		}
		f.Tags = append(f.Tags, t)
	}
	if err := tagRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating facet tags: %w", err)
	}

	return f, nil
}
