package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/auth"
	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
	"github.com/nvoropaev/movielog/internal/service"
)

// MovieHandler owns the /api/movies surface.
type MovieHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

func NewMovieHandler(catalog *service.CatalogService, logger *slog.Logger) *MovieHandler {
	return &MovieHandler{catalog: catalog, logger: logger}
}

// moviePayload mirrors the JSON body of create/import/update. Every
// field is a pointer so a missing key, an explicit null and a value can
// be told apart; tagIds accepts an array or a comma-separated string.
type moviePayload struct {
	List        *string         `json:"list"`
	Title       *string         `json:"title"`
	Year        *int            `json:"year"`
	RuntimeMin  *int            `json:"runtimeMin"`
	GenresCsv   *string         `json:"genresCsv"`
	Description *string         `json:"description"`
	Notes       *string         `json:"notes"`
	Watched     *bool           `json:"watched"`
	Rating      *int            `json:"rating"`
	WatchedAt   *string         `json:"watchedAt"`
	PosterPath  *string         `json:"posterUrl"`
	URL         *string         `json:"url"`
	TagIDs      json.RawMessage `json:"tagIds"`

	// raw keys of the decoded object, for presence checks
	keys map[string]json.RawMessage
}

func decodeMoviePayload(r *http.Request) (*moviePayload, error) {
	var keys map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&keys); err != nil {
		return nil, apperror.BadRequest("request body must be a JSON object")
	}

	raw, err := json.Marshal(keys)
	if err != nil {
		return nil, apperror.BadRequest("request body must be a JSON object")
	}
	var p moviePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperror.BadRequest("invalid field types in request body")
	}
	p.keys = keys
	return &p, nil
}

func (p *moviePayload) has(key string) bool {
	_, ok := p.keys[key]
	return ok
}

// tagIDs normalizes the tagIds field into a slice. The second return is
// false when the key was absent from the payload.
func (p *moviePayload) tagIDs() ([]string, bool, error) {
	if !p.has("tagIds") {
		return nil, false, nil
	}
	if len(p.TagIDs) == 0 || string(p.TagIDs) == "null" {
		return []string{}, true, nil
	}

	var ids []string
	if err := json.Unmarshal(p.TagIDs, &ids); err == nil {
		return ids, true, nil
	}

	var csv string
	if err := json.Unmarshal(p.TagIDs, &csv); err == nil {
		ids = []string{}
		for _, id := range strings.Split(csv, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		return ids, true, nil
	}

	return nil, false, apperror.BadRequest("tagIds must be an array of ids or a comma-separated string")
}

func (p *moviePayload) toInput() (service.MovieInput, error) {
	in := service.MovieInput{}
	if p.List != nil {
		in.List = *p.List
	}
	if p.Title != nil {
		in.Title = *p.Title
	}
	in.Year = p.Year
	in.RuntimeMin = p.RuntimeMin
	if p.GenresCsv != nil {
		in.GenresCsv = *p.GenresCsv
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Notes != nil {
		in.Notes = *p.Notes
	}
	if p.Watched != nil {
		in.Watched = *p.Watched
	}
	in.Rating = p.Rating
	in.WatchedAt = p.WatchedAt
	if p.PosterPath != nil {
		in.PosterPath = *p.PosterPath
	}
	if p.URL != nil {
		in.URL = *p.URL
	}

	ids, set, err := p.tagIDs()
	if err != nil {
		return in, err
	}
	in.TagIDs = ids
	in.TagIDsSet = set
	return in, nil
}

func (p *moviePayload) toChange() (service.MovieChange, error) {
	ch := service.MovieChange{
		Title:        p.Title,
		List:         p.List,
		Year:         p.Year,
		YearSet:      p.has("year"),
		RuntimeMin:   p.RuntimeMin,
		RuntimeSet:   p.has("runtimeMin"),
		GenresCsv:    p.GenresCsv,
		Description:  p.Description,
		Notes:        p.Notes,
		URL:          p.URL,
		PosterPath:   p.PosterPath,
		Watched:      p.Watched,
		Rating:       p.Rating,
		RatingSet:    p.has("rating"),
		WatchedAt:    p.WatchedAt,
		WatchedAtSet: p.has("watchedAt"),
	}

	ids, set, err := p.tagIDs()
	if err != nil {
		return ch, err
	}
	ch.TagIDs = ids
	ch.TagIDsSet = set
	return ch, nil
}

// parseListQuery reads the listing filters from the URL. Unknown enums
// are left for the service to reject.
func parseListQuery(r *http.Request) repository.ListQuery {
	q := r.URL.Query()
	lq := repository.ListQuery{
		List: q.Get("list"),
		Q:    strings.TrimSpace(q.Get("q")),
		Sort: q.Get("sort"),
	}
	if lq.List == "" {
		lq.List = model.ListMy
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		lq.Page = v
	}
	if v, err := strconv.Atoi(q.Get("pageSize")); err == nil {
		lq.PageSize = v
	}
	if v, err := strconv.Atoi(q.Get("yearFrom")); err == nil {
		lq.YearFrom = &v
	}
	if v, err := strconv.Atoi(q.Get("yearTo")); err == nil {
		lq.YearTo = &v
	}
	lq.Genres = splitCSVParam(q.Get("genres"))
	lq.TagIDs = splitCSVParam(q.Get("tags"))
	return lq
}

func splitCSVParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (h *MovieHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	items, total, err := h.catalog.List(r.Context(), userID, parseListQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *MovieHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	m, err := h.catalog.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movie": m})
}

func (h *MovieHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	p, err := decodeMoviePayload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	in, err := p.toInput()
	if err != nil {
		writeError(w, err)
		return
	}

	m, err := h.catalog.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"movie": m})
}

func (h *MovieHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	p, err := decodeMoviePayload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ch, err := p.toChange()
	if err != nil {
		writeError(w, err)
		return
	}

	m, err := h.catalog.Update(r.Context(), userID, chi.URLParam(r, "id"), ch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movie": m})
}

// HandleDelete soft-deletes by default; ?hard=1 removes permanently.
func (h *MovieHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if r.URL.Query().Get("hard") == "1" {
		if err := h.catalog.HardDelete(r.Context(), userID, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	m, err := h.catalog.SoftDelete(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movie": m})
}

func (h *MovieHandler) HandleMove(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body struct {
		ToList string `json:"toList"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperror.BadRequest("request body must be a JSON object"))
		return
	}

	m, err := h.catalog.Move(r.Context(), userID, chi.URLParam(r, "id"), body.ToList)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movie": m})
}

func (h *MovieHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	m, err := h.catalog.Restore(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movie": m})
}

// HandleDuplicatesCheck is the loose pre-flight check.
func (h *MovieHandler) HandleDuplicatesCheck(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body struct {
		Title     string `json:"title"`
		Year      *int   `json:"year"`
		ExcludeID string `json:"excludeId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperror.BadRequest("request body must be a JSON object"))
		return
	}

	dups, err := h.catalog.DuplicatesCheck(r.Context(), userID, body.Title, body.Year, body.ExcludeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"duplicates": dups})
}

// HandleDuplicatesCheckStrict requires title and year and ignores
// deleted movies.
func (h *MovieHandler) HandleDuplicatesCheckStrict(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body struct {
		Title string `json:"title"`
		Year  *int   `json:"year"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperror.BadRequest("request body must be a JSON object"))
		return
	}

	dups, err := h.catalog.DuplicatesCheckStrict(r.Context(), userID, body.Title, body.Year)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"duplicates": dups})
}

func (h *MovieHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	p, err := decodeMoviePayload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	in, err := p.toInput()
	if err != nil {
		writeError(w, err)
		return
	}

	m, err := h.catalog.Import(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"movie": m})
}

func (h *MovieHandler) HandleCopy(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body struct {
		MovieID    string `json:"movieId"`
		FromUserID string `json:"fromUserId"`
		List       string `json:"list"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperror.BadRequest("request body must be a JSON object"))
		return
	}

	m, err := h.catalog.Copy(r.Context(), userID, body.FromUserID, body.MovieID, body.List)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "movieId": m.ID})
}

// HandleExport streams the catalog as a CSV download.
func (h *MovieHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	scope := r.URL.Query().Get("scope")
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="movies.csv"`)

	if err := h.catalog.Export(r.Context(), w, userID, scope, q); err != nil {
		// Validation failures happen before the first byte goes out;
		// later errors can only be logged.
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			w.Header().Del("Content-Disposition")
			writeError(w, err)
			return
		}
		h.logger.Error("export failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func (h *MovieHandler) HandleFilters(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	list := r.URL.Query().Get("list")
	if list == "" {
		list = model.ListMy
	}

	f, err := h.catalog.Filters(r.Context(), userID, list)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}
