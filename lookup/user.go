package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bluesky-social/rolodex/pkg/metrics"
	"github.com/bluesky-social/rolodex/platform"
	"github.com/bluesky-social/rolodex/userstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// How long a cached record is served without contacting the platform.
const DefaultFreshness = time.Hour

const (
	terminatedName        = "Terminated Account"
	terminatedDescription = "This account has been terminated."
)

// Source says where a [Resolution] came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceAPI   Source = "api"
)

type Resolution struct {
	Source       Source           `json:"source"`
	Data         platform.Profile `json:"data"`
	AvatarURL    *string          `json:"avatarUrl"`
	IsTerminated bool             `json:"isTerminated"`

	// Set only when a terminated account was recovered from the platform.
	*Recovery
}

// Recovery holds what could still be read about a terminated account.
type Recovery struct {
	Stats             platform.Stats `json:"stats"`
	PreviousUsernames []string       `json:"previousUsernames"`
}

// UserResolver resolves user IDs to profiles, reading through the store.
//
// Zero values for Freshness, Logger and Now select DefaultFreshness,
// slog.Default() and time.Now.
type UserResolver struct {
	Store     userstore.Store
	Platform  Platform
	Logger    *slog.Logger
	Freshness time.Duration
	Now       func() time.Time
}

func (r *UserResolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *UserResolver) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *UserResolver) freshness() time.Duration {
	if r.Freshness <= 0 {
		return DefaultFreshness
	}
	return r.Freshness
}

// Resolve returns the profile of userID, from the cache if the cached copy
// is fresh and from the platform otherwise. A platform "bad request" on the
// profile fetch is treated as a terminated account and recovered with
// best-effort calls. Every other upstream or store failure is returned
// wrapping ErrResolutionFailed, and nothing is written to the cache.
func (r *UserResolver) Resolve(ctx context.Context, userID string) (*Resolution, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user ID", ErrInvalidInput)
	}

	ctx, span := otel.Tracer("lookup").Start(ctx, "UserResolver.Resolve", trace.WithAttributes(attribute.String("userId", userID)))
	defer span.End()

	start := time.Now()
	res, err := r.resolve(ctx, userID)
	source, status := "none", metrics.StatusError
	if err == nil {
		source, status = string(res.Source), metrics.StatusOK
		if res.Recovery != nil {
			status = metrics.StatusTerminated
		}
	}
	span.SetAttributes(attribute.String("source", source), attribute.String("status", status))
	if err != nil {
		span.RecordError(err)
	}
	userResolutions.WithLabelValues(source, status).Inc()
	userResolutionDuration.WithLabelValues(source, status).Observe(time.Since(start).Seconds())
	return res, err
}

func (r *UserResolver) resolve(ctx context.Context, userID string) (*Resolution, error) {
	cached, err := r.Store.GetCachedUser(ctx, userID)
	if err != nil && !errors.Is(err, userstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: reading cache: %w", ErrResolutionFailed, err)
	}
	if cached != nil {
		if res := r.fromCache(cached); res != nil {
			return res, nil
		}
	}

	profile, err := r.Platform.GetUser(ctx, userID)
	if platform.IsBadRequest(err) {
		return r.recoverTerminated(ctx, userID, err)
	} else if err != nil {
		return nil, fmt.Errorf("%w: fetching profile %s: %w", ErrResolutionFailed, userID, err)
	}

	res := Resolution{
		Source:       SourceAPI,
		Data:         *profile,
		AvatarURL:    absorb(r.logger(), "avatar", attempt(ctx, r.avatarFetcher(userID)), nil),
		IsTerminated: profile.IsBanned,
	}
	return r.save(ctx, userID, &res)
}

// fromCache returns nil if the record is stale or its profile no longer decodes.
func (r *UserResolver) fromCache(rec *userstore.CachedUser) *Resolution {
	if r.now().Sub(rec.Timestamp) >= r.freshness() {
		return nil
	}
	var profile platform.Profile
	if err := json.Unmarshal(rec.UserData, &profile); err != nil {
		r.logger().Warn("discarding undecodable cached profile", "userId", rec.UserID, "err", err)
		return nil
	}
	return &Resolution{
		Source:       SourceCache,
		Data:         profile,
		AvatarURL:    rec.AvatarURL,
		IsTerminated: rec.IsTerminated,
	}
}

func (r *UserResolver) avatarFetcher(userID string) func(context.Context) (*string, error) {
	return func(ctx context.Context) (*string, error) {
		u, err := r.Platform.GetAvatarURL(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &u, nil
	}
}

// recoverTerminated synthesizes a banned profile from whatever the platform
// still serves for the account. The three recovery calls run concurrently
// and none of their failures are fatal.
func (r *UserResolver) recoverTerminated(ctx context.Context, userID string, cause error) (*Resolution, error) {
	logger := r.logger().With("userId", userID)
	logger.Info("profile fetch rejected, recovering terminated account", "err", cause)

	var wg sync.WaitGroup
	history := spawn(ctx, &wg, func(ctx context.Context) ([]string, error) {
		return r.Platform.GetUsernameHistory(ctx, userID)
	})
	counts := spawn(ctx, &wg, func(ctx context.Context) (platform.Stats, error) {
		return fetchCounts(ctx, r.Platform, userID)
	})
	avatar := spawn(ctx, &wg, r.avatarFetcher(userID))
	wg.Wait()

	rec := Recovery{
		Stats:             absorb(logger, "stats", *counts, platform.Stats{}),
		PreviousUsernames: absorb(logger, "username_history", *history, []string{}),
	}
	if rec.PreviousUsernames == nil {
		rec.PreviousUsernames = []string{}
	}

	// non-numeric IDs cannot come back from the platform; keep 0 for them
	id, _ := strconv.ParseInt(userID, 10, 64)
	stats := rec.Stats
	res := Resolution{
		Source: SourceAPI,
		Data: platform.Profile{
			ID:                id,
			Name:              terminatedName,
			DisplayName:       terminatedName,
			Description:       terminatedDescription,
			IsBanned:          true,
			PreviousUsernames: rec.PreviousUsernames,
			Stats:             &stats,
		},
		AvatarURL:    absorb(logger, "avatar", *avatar, nil),
		IsTerminated: true,
		Recovery:     &rec,
	}
	return r.save(ctx, userID, &res)
}

func (r *UserResolver) save(ctx context.Context, userID string, res *Resolution) (*Resolution, error) {
	data, err := json.Marshal(res.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding profile: %w", ErrResolutionFailed, err)
	}
	_, err = r.Store.UpsertCachedUser(ctx, userstore.CachedUser{
		UserID:       userID,
		UserData:     data,
		AvatarURL:    res.AvatarURL,
		Timestamp:    r.now(),
		IsTerminated: res.IsTerminated,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: writing cache: %w", ErrResolutionFailed, err)
	}
	return res, nil
}
