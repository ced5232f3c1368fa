package userstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	redisUserPrefix   = "rolodex/user/"
	redisHistoryKey   = "rolodex/search"
	redisHistorySeq   = "rolodex/search/seq"
	redisTimestampFmt = time.RFC3339Nano
)

// RedisStore implements [Store] with one hash per cached user and a sorted
// set (scored by timestamp) for the search log.
//
// Null avatar URLs and absent user data are stored as empty strings.
type RedisStore struct {
	Client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("could not configure redis user store: %w", err)
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("could not connect to redis user store: %w", err)
	}
	return &RedisStore{Client: rdb}, nil
}

func (s *RedisStore) AppendSearchHistory(ctx context.Context, entry SearchEntry) (*SearchEntry, error) {
	id, err := s.Client.Incr(ctx, redisHistorySeq).Result()
	if err != nil {
		return nil, fmt.Errorf("appending search history: %w", err)
	}
	entry.ID = uint64(id)
	entry.Timestamp = storedTime(entry.Timestamp)

	b, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	z := redis.Z{
		Score:  float64(entry.Timestamp.UnixMicro()),
		Member: string(b),
	}
	if err := s.Client.ZAdd(ctx, redisHistoryKey, z).Err(); err != nil {
		return nil, fmt.Errorf("appending search history: %w", err)
	}
	return &entry, nil
}

func (s *RedisStore) RecentSearches(ctx context.Context, limit int) ([]SearchEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	members, err := s.Client.ZRevRange(ctx, redisHistoryKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing search history: %w", err)
	}
	entries := make([]SearchEntry, 0, len(members))
	for _, m := range members {
		var e SearchEntry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("decoding search history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) GetCachedUser(ctx context.Context, userID string) (*CachedUser, error) {
	vals, err := s.Client.HGetAll(ctx, redisUserPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("reading cached user: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	return decodeRedisUser(userID, vals)
}

func (s *RedisStore) UpsertCachedUser(ctx context.Context, rec CachedUser, fields ...Field) (*CachedUser, error) {
	fields = normalizeFields(fields)
	for _, f := range fields {
		if !hasField(AllFields, f) {
			return nil, fmt.Errorf("unknown cached user field: %q", f)
		}
	}
	rec.Timestamp = storedTime(rec.Timestamp)
	key := redisUserPrefix + rec.UserID

	encoded := encodeRedisUser(rec)
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "user_id", rec.UserID)
		for _, f := range AllFields {
			if hasField(fields, f) {
				pipe.HSet(ctx, key, string(f), encoded[f])
			} else {
				// only takes effect when the record is new
				pipe.HSetNX(ctx, key, string(f), encoded[f])
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upserting cached user: %w", err)
	}
	return s.GetCachedUser(ctx, rec.UserID)
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}

func encodeRedisUser(rec CachedUser) map[Field]string {
	avatar := ""
	if rec.AvatarURL != nil {
		avatar = *rec.AvatarURL
	}
	terminated := "0"
	if rec.IsTerminated {
		terminated = "1"
	}
	return map[Field]string{
		FieldUserData:     string(rec.UserData),
		FieldAvatarURL:    avatar,
		FieldTimestamp:    rec.Timestamp.Format(redisTimestampFmt),
		FieldIsTerminated: terminated,
	}
}

func decodeRedisUser(userID string, vals map[string]string) (*CachedUser, error) {
	rec := CachedUser{
		UserID:       userID,
		IsTerminated: vals[string(FieldIsTerminated)] == "1",
	}
	if d := vals[string(FieldUserData)]; d != "" {
		rec.UserData = []byte(d)
	}
	if a := vals[string(FieldAvatarURL)]; a != "" {
		rec.AvatarURL = &a
	}
	if ts := vals[string(FieldTimestamp)]; ts != "" {
		t, err := time.Parse(redisTimestampFmt, ts)
		if err != nil {
			return nil, fmt.Errorf("decoding cached user timestamp: %w", err)
		}
		rec.Timestamp = t
	}
	return &rec, nil
}
