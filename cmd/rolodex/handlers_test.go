package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bluesky-social/rolodex/platform"
	"github.com/bluesky-social/rolodex/userstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpstream serves the platform endpoints for a few known users:
// 123 is a normal account, 999 is terminated with nothing recoverable, and
// 321 has a broken followers counter.
type fakeUpstream struct {
	mu   sync.Mutex
	hits map[string]int
}

func (f *fakeUpstream) hit(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[r.URL.Path]++
}

func (f *fakeUpstream) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeUpstream) handler() http.Handler {
	fail := func(w http.ResponseWriter, status int) {
		w.WriteHeader(status)
		w.Write([]byte(`{"errors":[{"code":0,"message":"Something went wrong"}]}`))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "123", "321":
			w.Write([]byte(`{"id":` + r.PathValue("id") + `,"name":"builderman","displayName":"Builder","description":"","created":"2006-02-27T21:06:40.3Z","isBanned":false,"externalAppDisplayName":null,"hasVerifiedBadge":true}`))
		case "999":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"errors":[{"code":3,"message":"The user id is invalid."}]}`))
		default:
			fail(w, http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("GET /v1/users/avatar-headshot", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("userIds") != "123" {
			fail(w, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data":[{"targetId":123,"state":"Completed","imageUrl":"https://cdn.example.com/123.png"}]}`))
	})
	mux.HandleFunc("GET /v1/users/{id}/username-history", func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /v1/users/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "123" {
			fail(w, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"status":"building"}`))
	})
	mux.HandleFunc("GET /v1/users/{id}/{rel}/count", func(w http.ResponseWriter, r *http.Request) {
		id, rel := r.PathValue("id"), r.PathValue("rel")
		switch {
		case id == "123":
			w.Write([]byte(map[string]string{
				"friends":    `{"count":12}`,
				"followers":  `{"count":3400}`,
				"followings": `{"count":56}`,
			}[rel]))
		case id == "321" && rel != "followers":
			w.Write([]byte(`{"count":1}`))
		default:
			fail(w, http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("POST /v1/usernames/users", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Usernames []string `json:"usernames"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		switch body.Usernames[0] {
		case "robloxuser123":
			w.Write([]byte(`{"data":[{"requestedUsername":"robloxuser123","hasVerifiedBadge":false,"id":456,"name":"robloxuser123","displayName":"RU"}]}`))
		case "explode":
			fail(w, http.StatusServiceUnavailable)
		default:
			w.Write([]byte(`{"data":[]}`))
		}
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hit(r)
		mux.ServeHTTP(w, r)
	})
}

type testEnv struct {
	srv      *Server
	store    userstore.Store
	upstream *fakeUpstream
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	up := &fakeUpstream{hits: map[string]int{}}
	upSrv := httptest.NewServer(up.handler())
	t.Cleanup(upSrv.Close)

	store, err := userstore.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "rolodex.sqlite"), userstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	plat := platform.NewClient(platform.Config{
		UsersHost:      upSrv.URL,
		ThumbnailsHost: upSrv.URL,
		FriendsHost:    upSrv.URL,
		HTTPClient:     upSrv.Client(),
		Timeout:        5 * time.Second,
	})

	srv, err := NewServer(Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Bind:     ":0",
		Store:    store,
		Platform: plat,
	})
	require.NoError(t, err)

	return &testEnv{srv: srv, store: store, upstream: up}
}

func (env *testEnv) request(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestGetUser(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t)

	code, body := env.request(t, http.MethodGet, "/api/users/123", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal("api", body["source"])
	assert.Equal("https://cdn.example.com/123.png", body["avatarUrl"])
	assert.Equal(false, body["isTerminated"])
	data := body["data"].(map[string]any)
	assert.Equal(123.0, data["id"])
	assert.Equal("builderman", data["name"])
	assert.NotContains(body, "stats")

	code, body = env.request(t, http.MethodGet, "/api/users/123", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal("cache", body["source"])
	assert.Equal(1, env.upstream.count("/v1/users/123"))
}

func TestGetUserTerminated(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t)

	code, body := env.request(t, http.MethodGet, "/api/users/999", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal("api", body["source"])
	assert.Equal(true, body["isTerminated"])
	assert.Nil(body["avatarUrl"])
	assert.Equal([]any{}, body["previousUsernames"])
	assert.Equal(map[string]any{"friends": 0.0, "followers": 0.0, "following": 0.0}, body["stats"])
	data := body["data"].(map[string]any)
	assert.Equal("Terminated Account", data["name"])
	assert.Equal(true, data["isBanned"])

	rec, err := env.store.GetCachedUser(context.Background(), "999")
	require.NoError(t, err)
	assert.True(rec.IsTerminated)
}

func TestGetUserUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.request(t, http.MethodGet, "/api/users/500", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to fetch user data", body["error"])
	assert.NotEmpty(t, body["details"])

	_, err := env.store.GetCachedUser(context.Background(), "500")
	assert.ErrorIs(t, err, userstore.ErrNotFound)
}

func TestResolveUsernameEndpoint(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t)

	code, body := env.request(t, http.MethodPost, "/api/users/by-username", `{"username":"robloxuser123"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(map[string]any{"userId": "456"}, body)

	code, body = env.request(t, http.MethodPost, "/api/users/by-username", `{"username":"nobody"}`)
	assert.Equal(http.StatusNotFound, code)
	assert.Equal("User not found", body["error"])

	code, body = env.request(t, http.MethodPost, "/api/users/by-username", `{"username":"explode"}`)
	assert.Equal(http.StatusInternalServerError, code)
	assert.Equal("Failed to fetch user by username", body["error"])

	for _, bad := range []string{`{}`, `{"username":""}`, `{"username":"  "}`, `not json`} {
		code, _ = env.request(t, http.MethodPost, "/api/users/by-username", bad)
		assert.Equal(http.StatusBadRequest, code, bad)
	}

	entries, err := env.store.RecentSearches(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal("explode", entries[0].Query)
	assert.False(entries[0].Success)
	assert.Equal("nobody", entries[1].Query)
	assert.False(entries[1].Success)
	assert.Equal("robloxuser123", entries[2].Query)
	assert.True(entries[2].Success)
}

func TestSearchHistoryEndpoint(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		_, err := env.store.AppendSearchHistory(ctx, userstore.SearchEntry{
			Query:     "user" + string(rune('a'+i)),
			Type:      userstore.SearchTypeUsername,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Success:   true,
		})
		require.NoError(t, err)
	}

	list := func(query string) []userstore.SearchEntry {
		req := httptest.NewRequest(http.MethodGet, "/api/search-history"+query, nil)
		rec := httptest.NewRecorder()
		env.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var entries []userstore.SearchEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		return entries
	}

	entries := list("")
	assert.Len(entries, 10)
	assert.Equal("usero", entries[0].Query)

	assert.Len(list("?limit=3"), 3)
	assert.Len(list("?limit=100"), 15)
	assert.Len(list("?limit=abc"), 10)
	assert.Len(list("?limit=-4"), 10)
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.request(t, http.MethodGet, "/api/users/123/stats", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"friends": 12.0, "followers": 3400.0, "following": 56.0}, body)

	code, body = env.request(t, http.MethodGet, "/api/users/321/stats", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"friends": "N/A", "followers": "N/A", "following": "N/A"}, body)
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.request(t, http.MethodGet, "/api/users/123/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"status": "building"}, body)

	code, body = env.request(t, http.MethodGet, "/api/users/77/status", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to fetch user status", body["error"])
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.request(t, http.MethodGet, "/_health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "rolodex", body["daemon"])

	code, body = env.request(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Not Found", body["error"])
}
