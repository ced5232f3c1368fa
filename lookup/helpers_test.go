package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bluesky-social/rolodex/platform"
	"github.com/bluesky-social/rolodex/userstore"

	"github.com/stretchr/testify/require"
)

var errUnexpectedCall = errors.New("unexpected upstream call")

// fakePlatform implements Platform with per-method hooks and call counting.
// A nil hook fails the call.
type fakePlatform struct {
	user    func(userID string) (*platform.Profile, error)
	avatar  func(userID string) (string, error)
	history func(userID string) ([]string, error)
	lookup  func(usernames []string) ([]platform.UsernameMatch, error)
	count   func(userID string, rel platform.Relation) (int64, error)

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakePlatform) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakePlatform) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakePlatform) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakePlatform) GetUser(ctx context.Context, userID string) (*platform.Profile, error) {
	f.record("user")
	if f.user == nil {
		return nil, errUnexpectedCall
	}
	return f.user(userID)
}

func (f *fakePlatform) GetAvatarURL(ctx context.Context, userID string) (string, error) {
	f.record("avatar")
	if f.avatar == nil {
		return "", errUnexpectedCall
	}
	return f.avatar(userID)
}

func (f *fakePlatform) GetUsernameHistory(ctx context.Context, userID string) ([]string, error) {
	f.record("history")
	if f.history == nil {
		return nil, errUnexpectedCall
	}
	return f.history(userID)
}

func (f *fakePlatform) LookupUsernames(ctx context.Context, usernames []string) ([]platform.UsernameMatch, error) {
	f.record("lookup")
	if f.lookup == nil {
		return nil, errUnexpectedCall
	}
	return f.lookup(usernames)
}

func (f *fakePlatform) GetCount(ctx context.Context, userID string, rel platform.Relation) (int64, error) {
	f.record(string(rel))
	if f.count == nil {
		return 0, errUnexpectedCall
	}
	return f.count(userID, rel)
}

func countsOf(friends, followers, following int64) func(string, platform.Relation) (int64, error) {
	return func(_ string, rel platform.Relation) (int64, error) {
		switch rel {
		case platform.RelationFriends:
			return friends, nil
		case platform.RelationFollowers:
			return followers, nil
		case platform.RelationFollowings:
			return following, nil
		}
		return 0, fmt.Errorf("unknown relation %s", rel)
	}
}

func badRequest() error {
	return &platform.APIError{StatusCode: 400, Code: 3, Message: "The user id is invalid."}
}

func testStore(t *testing.T) userstore.Store {
	t.Helper()
	dburl := "sqlite://" + filepath.Join(t.TempDir(), "lookup.sqlite")
	st, err := userstore.Open(context.Background(), dburl, userstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
