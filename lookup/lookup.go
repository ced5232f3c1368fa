// Package lookup resolves platform users through the persistent cache.
//
// [UserResolver] serves cached profiles while they are fresh and refreshes
// them from the platform otherwise, recovering what it can for terminated
// accounts. [UsernameResolver] maps a username to a user ID and records every
// attempt in the search log. [StatsAggregator] reads social counters.
package lookup

import (
	"context"
	"errors"

	"github.com/bluesky-social/rolodex/platform"
)

var (
	// Caller supplied an empty or malformed argument.
	ErrInvalidInput = errors.New("invalid input")
	// The platform has no user matching the query.
	ErrNotFound = errors.New("user not found")
	// Any other failure to produce a result.
	ErrResolutionFailed = errors.New("user resolution failed")
)

// Platform is the subset of [platform.Client] used by the resolvers.
type Platform interface {
	GetUser(ctx context.Context, userID string) (*platform.Profile, error)
	GetAvatarURL(ctx context.Context, userID string) (string, error)
	GetUsernameHistory(ctx context.Context, userID string) ([]string, error)
	LookupUsernames(ctx context.Context, usernames []string) ([]platform.UsernameMatch, error)
	GetCount(ctx context.Context, userID string, rel platform.Relation) (int64, error)
}

var _ Platform = (*platform.Client)(nil)
