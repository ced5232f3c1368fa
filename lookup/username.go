package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bluesky-social/rolodex/pkg/metrics"
	"github.com/bluesky-social/rolodex/userstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UsernameResolver maps usernames to user IDs and logs every attempt to the
// search history.
type UsernameResolver struct {
	Store    userstore.Store
	Platform Platform
	Logger   *slog.Logger
}

// Resolve returns the user ID for username. Empty input fails with
// ErrInvalidInput and is not logged. Every other call appends exactly one
// search history entry, marked successful only when a user was found.
func (r *UsernameResolver) Resolve(ctx context.Context, username string) (string, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if strings.TrimSpace(username) == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidInput)
	}

	ctx, span := otel.Tracer("lookup").Start(ctx, "UsernameResolver.Resolve", trace.WithAttributes(attribute.String("username", username)))
	defer span.End()

	matches, lookupErr := r.Platform.LookupUsernames(ctx, []string{username})
	found := lookupErr == nil && len(matches) > 0

	_, err := r.Store.AppendSearchHistory(ctx, userstore.SearchEntry{
		Query:   username,
		Type:    userstore.SearchTypeUsername,
		Success: found,
	})
	if err != nil {
		usernameLookups.WithLabelValues(metrics.StatusError).Inc()
		return "", fmt.Errorf("%w: recording search: %w", ErrResolutionFailed, err)
	}

	switch {
	case lookupErr != nil:
		logger.Warn("username lookup failed", "username", username, "err", lookupErr)
		usernameLookups.WithLabelValues(metrics.StatusError).Inc()
		return "", fmt.Errorf("%w: looking up username: %w", ErrResolutionFailed, lookupErr)
	case !found:
		usernameLookups.WithLabelValues(metrics.StatusNotFound).Inc()
		return "", fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	usernameLookups.WithLabelValues(metrics.StatusOK).Inc()
	return strconv.FormatInt(matches[0].ID, 10), nil
}
