package lookup

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/bluesky-social/rolodex/pkg/metrics"
	"github.com/bluesky-social/rolodex/platform"

	"golang.org/x/sync/errgroup"
)

// Count is a counter value, or the "N/A" sentinel when it could not be read.
type Count struct {
	Value int64
	Valid bool
}

func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte(`"N/A"`), nil
	}
	return strconv.AppendInt(nil, c.Value, 10), nil
}

func (c *Count) UnmarshalJSON(b []byte) error {
	if string(b) == `"N/A"` {
		*c = Count{}
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = Count{Value: n, Valid: true}
	return nil
}

// StatsView is the all-or-nothing social counter triple. The zero value is
// the all-unavailable response.
type StatsView struct {
	Friends   Count `json:"friends"`
	Followers Count `json:"followers"`
	Following Count `json:"following"`
}

type StatsAggregator struct {
	Platform Platform
	Logger   *slog.Logger
}

// Stats never fails: if any of the three counters cannot be read, all three
// are reported unavailable.
func (a *StatsAggregator) Stats(ctx context.Context, userID string) StatsView {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s, err := fetchCounts(ctx, a.Platform, userID)
	if err != nil {
		logger.Warn("stats unavailable", "userId", userID, "err", err)
		statsRequests.WithLabelValues(metrics.StatusUnavailable).Inc()
		return StatsView{}
	}
	statsRequests.WithLabelValues(metrics.StatusOK).Inc()
	return StatsView{
		Friends:   Count{Value: s.Friends, Valid: true},
		Followers: Count{Value: s.Followers, Valid: true},
		Following: Count{Value: s.Following, Valid: true},
	}
}

// fetchCounts reads the three counters concurrently. The first failure
// cancels the remaining calls and is returned.
func fetchCounts(ctx context.Context, p Platform, userID string) (platform.Stats, error) {
	var s platform.Stats
	g, gctx := errgroup.WithContext(ctx)
	count := func(rel platform.Relation, dst *int64) {
		g.Go(func() error {
			n, err := p.GetCount(gctx, userID, rel)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}
	count(platform.RelationFriends, &s.Friends)
	count(platform.RelationFollowers, &s.Followers)
	count(platform.RelationFollowings, &s.Following)
	if err := g.Wait(); err != nil {
		return platform.Stats{}, err
	}
	return s, nil
}
