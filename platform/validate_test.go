package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	assert := assert.New(t)

	p, err := ParseProfile([]byte(`{
		"id": 123,
		"name": "builderman",
		"displayName": "Builder",
		"description": "hello",
		"created": "2006-02-27T21:06:40.3Z",
		"isBanned": false,
		"externalAppDisplayName": null,
		"hasVerifiedBadge": true
	}`))
	require.NoError(t, err)
	assert.Equal(int64(123), p.ID)
	assert.Equal("builderman", p.Name)
	assert.Equal("Builder", p.DisplayName)
	assert.Equal("hello", p.Description)
	assert.Equal("2006-02-27T21:06:40.3Z", p.Created)
	assert.Nil(p.ExternalAppDisplayName)
	assert.True(p.HasVerifiedBadge)
	assert.Nil(p.Stats)
	assert.Nil(p.PreviousUsernames)
}

func TestParseProfileDefaults(t *testing.T) {
	assert := assert.New(t)

	p, err := ParseProfile([]byte(`{"id": 7, "name": "minimal"}`))
	require.NoError(t, err)
	assert.Equal("", p.Description)
	assert.False(p.IsBanned)
	assert.False(p.HasVerifiedBadge)
	assert.Nil(p.ExternalAppDisplayName)

	p, err = ParseProfile([]byte(`{"id": 7, "name": "m", "description": null, "previousUsernames": [], "stats": {"friends": 1, "followers": 2, "following": 3}}`))
	require.NoError(t, err)
	assert.Equal("", p.Description)
	assert.NotNil(p.PreviousUsernames)
	assert.Empty(p.PreviousUsernames)
	assert.Equal(&Stats{Friends: 1, Followers: 2, Following: 3}, p.Stats)
}

func TestParseProfileRejects(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"not json", `<html>`},
		{"not object", `[1, 2]`},
		{"missing id", `{"name": "x"}`},
		{"missing name", `{"id": 1}`},
		{"string id", `{"id": "1", "name": "x"}`},
		{"fractional id", `{"id": 1.5, "name": "x"}`},
		{"numeric name", `{"id": 1, "name": 5}`},
		{"bad optional", `{"id": 1, "name": "x", "isBanned": "yes"}`},
		{"bad previous usernames", `{"id": 1, "name": "x", "previousUsernames": [1]}`},
		{"partial stats", `{"id": 1, "name": "x", "stats": {"friends": 1}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ParseProfile([]byte(tc.body))
			assert.Nil(t, p)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
			assert.Equal(t, "profile", ve.Shape)
			assert.NotEmpty(t, ve.Problems)
		})
	}
}

func TestParseAvatar(t *testing.T) {
	assert := assert.New(t)

	u, err := ParseAvatar([]byte(`{"data":[{"targetId":1,"state":"Completed","imageUrl":"https://tr.rbxcdn.com/abc/150/150/AvatarHeadshot/Png"}]}`))
	require.NoError(t, err)
	assert.Equal("https://tr.rbxcdn.com/abc/150/150/AvatarHeadshot/Png", u)

	_, err = ParseAvatar([]byte(`{"data":[]}`))
	assert.Error(err)

	_, err = ParseAvatar([]byte(`{"data":[{"targetId":1,"state":"Blocked","imageUrl":""}]}`))
	assert.Error(err)

	_, err = ParseAvatar([]byte(`{"data":[{"targetId":1,"state":"Completed","imageUrl":""}]}`))
	assert.Error(err)
}

func TestParseUsernameHistory(t *testing.T) {
	names, err := ParseUsernameHistory([]byte(`{"previousPageCursor":null,"data":[{"name":"old1"},{"name":"old2"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"old1", "old2"}, names)

	names, err = ParseUsernameHistory([]byte(`{"data":[]}`))
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)

	_, err = ParseUsernameHistory([]byte(`{"data":[{"name":3}]}`))
	assert.Error(t, err)
}

func TestParseUsernameLookup(t *testing.T) {
	matches, err := ParseUsernameLookup([]byte(`{"data":[{"requestedUsername":"robloxuser123","hasVerifiedBadge":false,"id":456,"name":"robloxuser123","displayName":"Roblox User"}]}`))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(456), matches[0].ID)
	assert.Equal(t, "Roblox User", matches[0].DisplayName)

	matches, err = ParseUsernameLookup([]byte(`{"data":[]}`))
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = ParseUsernameLookup([]byte(`{}`))
	assert.Error(t, err)
}

func TestParseCount(t *testing.T) {
	n, err := ParseCount([]byte(`{"count": 1500}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1500), n)

	for _, body := range []string{`{}`, `{"count": -1}`, `{"count": "12"}`, `{"count": 1e400}`} {
		_, err := ParseCount([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus([]byte(`{"status": "building things"}`))
	require.NoError(t, err)
	assert.Equal(t, "building things", st.Status)

	st, err = ParseStatus([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "", st.Status)

	_, err = ParseStatus([]byte(`{"status": false}`))
	assert.Error(t, err)
}
