package server

// End-to-end tests over the fully wired server: real router, real
// middleware, real services, in-memory SQLite. These pin the wire
// formats (status codes, error shapes, CSV download) that the API
// clients depend on.

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv, err := New(Config{
		DBPath:    ":memory:",
		JWTSecret: "0123456789abcdef0123456789abcdef",
		PosterDir: t.TempDir(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

// doRequest sends a JSON request and returns the response plus its raw
// body. The response body is already consumed and closed.
func doRequest(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func jsonBody(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

// registerUser creates an account and returns its token and user id.
func registerUser(t *testing.T, ts *httptest.Server, username string) (token, userID string) {
	t.Helper()

	resp, raw := doRequest(t, ts, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	body := jsonBody(t, raw)
	token, _ = body["token"].(string)
	require.NotEmpty(t, token)
	user := body["user"].(map[string]any)
	return token, user["id"].(string)
}

func TestAuthWire(t *testing.T) {
	ts := newTestServer(t)

	// Protected routes reject anonymous requests.
	resp, raw := doRequest(t, ts, http.MethodGet, "/api/movies", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", jsonBody(t, raw)["error"])

	token, _ := registerUser(t, ts, "alice")

	resp, raw = doRequest(t, ts, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := jsonBody(t, raw)["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])

	// Wrong password and unknown email must be indistinguishable.
	resp, _ = doRequest(t, ts, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "alice@example.com", "password": "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = doRequest(t, ts, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "nobody@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, raw = doRequest(t, ts, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "alice@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, jsonBody(t, raw)["token"])

	// The login cookie alone must authenticate a request.
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/me", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	cookieResp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer cookieResp.Body.Close()
	assert.Equal(t, http.StatusOK, cookieResp.StatusCode)
}

func TestMovieLifecycleWire(t *testing.T) {
	ts := newTestServer(t)
	token, _ := registerUser(t, ts, "alice")

	// Validation failures come back as a field-keyed error map.
	resp, raw := doRequest(t, ts, http.MethodPost, "/api/movies", token, map[string]any{
		"title": "",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errs := jsonBody(t, raw)["errors"].(map[string]any)
	assert.Contains(t, errs, "title")

	resp, raw = doRequest(t, ts, http.MethodPost, "/api/movies", token, map[string]any{
		"list": "my", "title": "Arrival", "year": 2016,
		"watched": true, "rating": 9, "watchedAt": "2020-01-01",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	movie := jsonBody(t, raw)["movie"].(map[string]any)
	id := movie["id"].(string)
	assert.Equal(t, "my", movie["list"])
	assert.Equal(t, float64(9), movie["rating"])
	assert.Equal(t, "2020-01-01", movie["watchedAt"])

	resp, raw = doRequest(t, ts, http.MethodGet, "/api/movies", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), jsonBody(t, raw)["total"])

	// Import blocks on an existing active movie with the same title+year.
	resp, raw = doRequest(t, ts, http.MethodPost, "/api/movies/import", token, map[string]any{
		"title": "arrival", "year": 2016,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	dups := jsonBody(t, raw)["duplicates"].([]any)
	require.Len(t, dups, 1)
	assert.Equal(t, "Arrival", dups[0].(map[string]any)["title"])

	resp, raw = doRequest(t, ts, http.MethodPost, "/api/movies/"+id+"/move", token, map[string]any{
		"toList": "later",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "later", jsonBody(t, raw)["movie"].(map[string]any)["list"])

	resp, raw = doRequest(t, ts, http.MethodDelete, "/api/movies/"+id, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	movie = jsonBody(t, raw)["movie"].(map[string]any)
	assert.Equal(t, "deleted", movie["list"])
	assert.Equal(t, "later", movie["deletedFromList"])

	resp, raw = doRequest(t, ts, http.MethodPost, "/api/movies/"+id+"/restore", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	movie = jsonBody(t, raw)["movie"].(map[string]any)
	assert.Equal(t, "later", movie["list"])
	assert.Nil(t, movie["deletedFromList"])

	resp, _ = doRequest(t, ts, http.MethodDelete, "/api/movies/"+id+"?hard=1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doRequest(t, ts, http.MethodGet, "/api/movies/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportWire(t *testing.T) {
	ts := newTestServer(t)
	token, _ := registerUser(t, ts, "alice")

	resp, raw := doRequest(t, ts, http.MethodPost, "/api/movies", token, map[string]any{
		"title": "Stalker", "year": 1979,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	resp, raw = doRequest(t, ts, http.MethodGet, "/api/movies/export", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,list,title,year,runtimeMin,genresCsv,description,notes,watched,rating,watchedAt,posterUrl,url,addedAt", strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "Stalker")

	// Unknown scope is rejected before any bytes are streamed.
	resp, _ = doRequest(t, ts, http.MethodGet, "/api/movies/export?scope=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTagsWire(t *testing.T) {
	ts := newTestServer(t)
	token, _ := registerUser(t, ts, "alice")

	resp, raw := doRequest(t, ts, http.MethodPost, "/api/tags", token, map[string]any{
		"name": "noir", "color": "red",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, jsonBody(t, raw)["errors"].(map[string]any), "color")

	resp, raw = doRequest(t, ts, http.MethodPost, "/api/tags", token, map[string]any{
		"name": "noir", "color": "#112233",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	tag := jsonBody(t, raw)["tag"].(map[string]any)
	assert.Equal(t, "noir", tag["name"])

	resp, raw = doRequest(t, ts, http.MethodGet, "/api/tags", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), jsonBody(t, raw)["total"])
}

func TestFeedWire(t *testing.T) {
	ts := newTestServer(t)
	aliceToken, aliceID := registerUser(t, ts, "alice")
	bobToken, _ := registerUser(t, ts, "bob")

	resp, raw := doRequest(t, ts, http.MethodPost, "/api/movies", aliceToken, map[string]any{
		"title": "Alien", "year": 1979,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	// Bob sees nothing until he follows Alice.
	resp, raw = doRequest(t, ts, http.MethodGet, "/api/notifications", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), jsonBody(t, raw)["total"])

	resp, _ = doRequest(t, ts, http.MethodPost, "/api/users/"+aliceID+"/follow", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = doRequest(t, ts, http.MethodGet, "/api/notifications", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := jsonBody(t, raw)
	require.Equal(t, float64(1), body["total"])
	item := body["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "movie_added", item["action"])
	assert.Equal(t, "alice", item["user"].(map[string]any)["username"])
	assert.Equal(t, "Alien", item["movie"].(map[string]any)["title"])

	resp, raw = doRequest(t, ts, http.MethodGet, "/api/notifications/status", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), jsonBody(t, raw)["unread"])

	resp, _ = doRequest(t, ts, http.MethodPost, "/api/notifications/read", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = doRequest(t, ts, http.MethodGet, "/api/notifications/status", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), jsonBody(t, raw)["unread"])
}

func TestPublicBrowsingWire(t *testing.T) {
	ts := newTestServer(t)
	aliceToken, aliceID := registerUser(t, ts, "alice")
	bobToken, _ := registerUser(t, ts, "bob")

	resp, raw := doRequest(t, ts, http.MethodPost, "/api/movies", aliceToken, map[string]any{
		"title": "Heat", "year": 1995, "list": "later",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	resp, raw = doRequest(t, ts, http.MethodGet, "/api/users", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, jsonBody(t, raw)["users"].([]any), 2)

	resp, raw = doRequest(t, ts, http.MethodGet, "/api/tabs", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tabs := jsonBody(t, raw)
	assert.Equal(t, float64(1), tabs["later"])
	assert.Equal(t, float64(2), tabs["users"])

	// Public listing merges the visible lists.
	resp, raw = doRequest(t, ts, http.MethodGet, "/api/users/"+aliceID+"/movies", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), jsonBody(t, raw)["total"])

	// Going private removes Alice from the public surface entirely.
	resp, _ = doRequest(t, ts, http.MethodPatch, "/api/profile", aliceToken, map[string]any{
		"isPublic": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodGet, "/api/users/"+aliceID, bobToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = doRequest(t, ts, http.MethodGet, "/api/users/"+aliceID+"/movies", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
