package userstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

// SQLStore implements [Store] on a gorm database.
type SQLStore struct {
	db *gorm.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database handle and migrates the schema.
func NewSQLStore(ctx context.Context, db *gorm.DB) (*SQLStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&CachedUser{}, &SearchEntry{}); err != nil {
		return nil, fmt.Errorf("migrating user store schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// SetupDatabase opens a gorm database from a URL-ish string.
//
// sqlite databases are limited to a single open connection and run in WAL
// mode. A sqlite path that does not exist yet has its directory created.
func SetupDatabase(dburl string, maxConnections int) (*gorm.DB, error) {
	var dial gorm.Dialector

	isSqlite := false
	openConns := maxConnections
	switch {
	case strings.HasPrefix(dburl, "sqlite://"), strings.HasPrefix(dburl, "sqlite="):
		path := strings.TrimPrefix(strings.TrimPrefix(dburl, "sqlite://"), "sqlite=")
		if !strings.Contains(path, ":?") && !strings.Contains(path, "mode=memory") {
			if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
				return nil, err
			}
		}
		dial = sqlite.Open(path)
		openConns = 1
		isSqlite = true
	case strings.HasPrefix(dburl, "postgresql://"), strings.HasPrefix(dburl, "postgres://"):
		// the driver accepts the full URL, scheme included
		dial = postgres.Open(dburl)
	case strings.HasPrefix(dburl, "postgres="):
		dial = postgres.Open(dburl[len("postgres="):])
	default:
		return nil, fmt.Errorf("unsupported or unrecognized database URL scheme")
	}

	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(),
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	if openConns <= 0 {
		openConns = 20
	}
	sqldb.SetMaxIdleConns(openConns)
	sqldb.SetMaxOpenConns(openConns)
	sqldb.SetConnMaxIdleTime(time.Hour)

	if isSqlite {
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
			return nil, err
		}
	}

	return db, nil
}

func enableTracing(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin())
}

// Timestamps are stored in UTC at microsecond precision so that ordering is
// stable across sqlite (text) and postgres (timestamptz) columns.
func storedTime(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Microsecond)
}

func (s *SQLStore) AppendSearchHistory(ctx context.Context, entry SearchEntry) (*SearchEntry, error) {
	entry.ID = 0
	entry.Timestamp = storedTime(entry.Timestamp)
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("appending search history: %w", err)
	}
	return &entry, nil
}

func (s *SQLStore) RecentSearches(ctx context.Context, limit int) ([]SearchEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var entries []SearchEntry
	err := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("listing search history: %w", err)
	}
	return entries, nil
}

func (s *SQLStore) GetCachedUser(ctx context.Context, userID string) (*CachedUser, error) {
	var rec CachedUser
	err := s.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("reading cached user: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) UpsertCachedUser(ctx context.Context, rec CachedUser, fields ...Field) (*CachedUser, error) {
	fields = normalizeFields(fields)
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		if !hasField(AllFields, f) {
			return nil, fmt.Errorf("unknown cached user field: %q", f)
		}
		cols = append(cols, string(f))
	}
	rec.Timestamp = storedTime(rec.Timestamp)

	var out CachedUser
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).Create(&rec).Error
		if err != nil {
			return err
		}
		return tx.First(&out, "user_id = ?", rec.UserID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("upserting cached user: %w", err)
	}
	return &out, nil
}

func (s *SQLStore) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}
