package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
)

// exportHeader fixes the CSV column order; importers depend on it.
var exportHeader = []string{
	"id", "list", "title", "year", "runtimeMin", "genresCsv", "description",
	"notes", "watched", "rating", "watchedAt", "posterUrl", "url", "addedAt",
}

// Export streams the caller's catalog as CSV into w, newest first.
// Scope is "all" or one list name; q applies the same substring search
// as listing. Rows are written as they are read, so the export never
// holds the whole catalog in memory.
func (s *CatalogService) Export(ctx context.Context, w io.Writer, userID, scope, q string) error {
	if scope == "" {
		scope = repository.ExportScopeAll
	}
	if scope != repository.ExportScopeAll && !model.ValidList(scope) {
		return apperror.BadRequest("unknown export scope")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("writing export header: %w", err)
	}

	err := s.movies.Export(ctx, userID, scope, q, func(m *model.Movie) error {
		return cw.Write(exportRow(m))
	})
	if err != nil {
		return fmt.Errorf("exporting movies: %w", err)
	}

	cw.Flush()
	return cw.Error()
}

func exportRow(m *model.Movie) []string {
	watched := "0"
	if m.Watched {
		watched = "1"
	}
	return []string{
		m.ID,
		m.List,
		m.Title,
		intField(m.Year),
		intField(m.RuntimeMin),
		m.GenresCsv,
		m.Description,
		m.Notes,
		watched,
		intField(m.Rating),
		strField(m.WatchedAt),
		m.PosterPath,
		m.URL,
		m.AddedAt.UTC().Format(time.RFC3339),
	}
}

func intField(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func strField(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
