// Package userstore persists cached user records and the search history log.
//
// Two backends implement [Store]: a SQL store on gorm (sqlite or postgres)
// and a Redis store. [Open] picks one from a connection URL.
package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Default number of entries returned by RecentSearches when no positive limit is given.
const DefaultHistoryLimit = 10

// Search types recorded in history entries.
const (
	SearchTypeUsername = "username"
)

var ErrNotFound = errors.New("record not found")

// Field names a single column of [CachedUser] for partial upserts.
type Field string

const (
	FieldUserData     Field = "user_data"
	FieldAvatarURL    Field = "avatar_url"
	FieldTimestamp    Field = "timestamp"
	FieldIsTerminated Field = "is_terminated"
)

// AllFields is the set of mutable columns written when an upsert names none.
var AllFields = []Field{FieldUserData, FieldAvatarURL, FieldTimestamp, FieldIsTerminated}

// CachedUser is one cached resolution result, keyed by the platform user ID.
//
// UserData is the normalized profile document, stored as opaque JSON.
type CachedUser struct {
	UserID       string    `gorm:"primaryKey;column:user_id" json:"userId"`
	UserData     []byte    `gorm:"column:user_data" json:"userData"`
	AvatarURL    *string   `gorm:"column:avatar_url" json:"avatarUrl"`
	Timestamp    time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
	IsTerminated bool      `gorm:"column:is_terminated;not null" json:"isTerminated"`
}

func (CachedUser) TableName() string {
	return "cached_users"
}

// SearchEntry is one row of the append-only search log.
type SearchEntry struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Query     string    `gorm:"not null" json:"query"`
	Type      string    `gorm:"not null" json:"type"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	Success   bool      `gorm:"not null" json:"success"`
}

func (SearchEntry) TableName() string {
	return "search_history"
}

// Store is the persistence surface used by the resolvers. Implementations
// hold no business logic and return storage errors unmodified (wrapped).
type Store interface {
	// Appends an entry and returns it with the store-assigned ID and timestamp.
	AppendSearchHistory(ctx context.Context, entry SearchEntry) (*SearchEntry, error)

	// Returns up to limit entries, newest first.
	RecentSearches(ctx context.Context, limit int) ([]SearchEntry, error)

	// Returns ErrNotFound if no record exists for userID.
	GetCachedUser(ctx context.Context, userID string) (*CachedUser, error)

	// Inserts rec, or merges only the named fields into an existing record.
	// Naming no fields writes all of them. Returns the stored record.
	UpsertCachedUser(ctx context.Context, rec CachedUser, fields ...Field) (*CachedUser, error)

	Close() error
}

// Options for [Open].
type Options struct {
	// Upper bound on SQL connections; ignored for sqlite (always 1) and redis.
	MaxConnections int
	// Enables gorm OpenTelemetry instrumentation.
	Tracing bool
}

// Open connects to the store described by dburl and ensures the schema exists.
//
// Recognized forms: sqlite://<path>, sqlite=<path>, postgres://..., postgresql://...,
// postgres=<dsn>, redis://... and rediss://...
func Open(ctx context.Context, dburl string, opts Options) (Store, error) {
	if strings.HasPrefix(dburl, "redis://") || strings.HasPrefix(dburl, "rediss://") {
		return NewRedisStore(ctx, dburl)
	}

	db, err := SetupDatabase(dburl, opts.MaxConnections)
	if err != nil {
		return nil, err
	}
	if opts.Tracing {
		if err := enableTracing(db); err != nil {
			return nil, fmt.Errorf("database tracing: %w", err)
		}
	}
	return NewSQLStore(ctx, db)
}

func normalizeFields(fields []Field) []Field {
	if len(fields) == 0 {
		return AllFields
	}
	return fields
}

func hasField(fields []Field, f Field) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}
