package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
	"github.com/xcsettings/xcsettings/pkg/xcodebuild"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	config Config
	now    func() time.Time
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 8
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a distinct database.
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		config: cfg,
		now:    time.Now,
	}, nil
}

// OpenSQLiteStore creates, initializes and migrates a store.
func OpenSQLiteStore(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Init opens the database connection and enables WAL mode for file databases.
func (s *SQLiteStore) Init(ctx context.Context) error {
	pragmas := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)", "_txlock=immediate"}
	if s.config.Path != memoryPath {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	dsn := s.config.Path + "?" + strings.Join(pragmas, "&")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// PutSettings replaces the cached settings for args and action. The entry
// expires after ttl.
func (s *SQLiteStore) PutSettings(ctx context.Context, args xcodebuild.Arguments, action xcodebuild.Action, all []*buildsettings.BuildSettings, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	fingerprint := args.Fingerprint()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM retrievals WHERE fingerprint = ? AND action = ?`,
		fingerprint, action.String(),
	); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}

	now := s.now()
	retrievalID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO retrievals (id, fingerprint, action, project_path, scheme, arguments, target_count, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		retrievalID,
		fingerprint,
		action.String(),
		args.Project.Path,
		args.Scheme,
		string(encodedArgs),
		len(all),
		now.UnixMilli(),
		now.Add(ttl).UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to insert retrieval: %w", err)
	}

	for i, settings := range all {
		encoded, err := json.Marshal(settings.Settings())
		if err != nil {
			return fmt.Errorf("failed to encode settings for %s: %w", settings.Target, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO target_settings (id, retrieval_id, position, target, settings)
			VALUES (?, ?, ?, ?, ?)
		`, uuid.NewString(), retrievalID, i, settings.Target, string(encoded)); err != nil {
			return fmt.Errorf("failed to insert settings for %s: %w", settings.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings: %w", err)
	}
	return nil
}

// GetSettings returns the unexpired cached settings for args and action in
// the order xcodebuild reported them. It returns ErrNotFound on a miss.
func (s *SQLiteStore) GetSettings(ctx context.Context, args xcodebuild.Arguments, action xcodebuild.Action) ([]*buildsettings.BuildSettings, error) {
	var retrievalID string
	var targetCount int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, target_count FROM retrievals
		WHERE fingerprint = ? AND action = ? AND expires_at > ?
	`, args.Fingerprint(), action.String(), s.now().UnixMilli()).Scan(&retrievalID, &targetCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retrieval: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT target, settings FROM target_settings
		WHERE retrieval_id = ?
		ORDER BY position
	`, retrievalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get target settings: %w", err)
	}
	defer rows.Close()

	all := make([]*buildsettings.BuildSettings, 0, targetCount)
	for rows.Next() {
		var target, encoded string
		if err := rows.Scan(&target, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan target settings: %w", err)
		}
		var settings map[string]string
		if err := json.Unmarshal([]byte(encoded), &settings); err != nil {
			return nil, fmt.Errorf("failed to decode settings for %s: %w", target, err)
		}
		all = append(all, buildsettings.New(target, settings, args, action))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating target settings: %w", err)
	}

	if len(all) != targetCount {
		return nil, fmt.Errorf("cached retrieval %s is incomplete: %d of %d targets", retrievalID, len(all), targetCount)
	}
	return all, nil
}

// ListRetrievals lists cached retrievals, newest first.
func (s *SQLiteStore) ListRetrievals(ctx context.Context, limit, offset int) ([]*Retrieval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fingerprint, action, project_path, scheme, arguments, target_count, created_at, expires_at
		FROM retrievals
		ORDER BY created_at DESC, project_path
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list retrievals: %w", err)
	}
	defer rows.Close()

	retrievals := []*Retrieval{}
	for rows.Next() {
		r := &Retrieval{}
		var action, encodedArgs string
		var createdAt, expiresAt int64
		if err := rows.Scan(
			&r.ID,
			&r.Fingerprint,
			&action,
			&r.ProjectPath,
			&r.Scheme,
			&encodedArgs,
			&r.TargetCount,
			&createdAt,
			&expiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan retrieval: %w", err)
		}
		if r.Action, err = xcodebuild.ParseAction(action); err != nil {
			return nil, fmt.Errorf("retrieval %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(encodedArgs), &r.Arguments); err != nil {
			return nil, fmt.Errorf("retrieval %s: failed to decode arguments: %w", r.ID, err)
		}
		r.CreatedAt = time.UnixMilli(createdAt)
		r.ExpiresAt = time.UnixMilli(expiresAt)
		retrievals = append(retrievals, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating retrievals: %w", err)
	}
	return retrievals, nil
}

// InvalidateProject deletes every entry for the workspace or project at
// projectPath.
func (s *SQLiteStore) InvalidateProject(ctx context.Context, projectPath string) (int64, error) {
	return s.deleteRetrievals(ctx, "invalidate project", `DELETE FROM retrievals WHERE project_path = ?`, projectPath)
}

// InvalidateDir deletes every entry whose project lives at or below dir.
func (s *SQLiteStore) InvalidateDir(ctx context.Context, dir string) (int64, error) {
	dir = strings.TrimSuffix(dir, "/")
	prefix := dir + "/"
	return s.deleteRetrievals(ctx, "invalidate directory",
		`DELETE FROM retrievals WHERE project_path = ? OR substr(project_path, 1, ?) = ?`,
		dir, len(prefix), prefix)
}

// DeleteExpired deletes entries whose TTL has passed.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	return s.deleteRetrievals(ctx, "delete expired settings", `DELETE FROM retrievals WHERE expires_at <= ?`, s.now().UnixMilli())
}

// Clear deletes every entry.
func (s *SQLiteStore) Clear(ctx context.Context) (int64, error) {
	return s.deleteRetrievals(ctx, "clear settings", `DELETE FROM retrievals`)
}

func (s *SQLiteStore) deleteRetrievals(ctx context.Context, op, query string, args ...any) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// Stats summarizes the cache.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	var oldest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(target_count), 0),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT project_path),
			MIN(created_at)
		FROM retrievals
	`, s.now().UnixMilli()).Scan(
		&stats.Retrievals,
		&stats.Targets,
		&stats.Expired,
		&stats.Projects,
		&oldest,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	if oldest.Valid {
		t := time.UnixMilli(oldest.Int64)
		stats.Oldest = &t
	}
	return stats, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
