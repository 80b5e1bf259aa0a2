package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend persists cache entries in SQLite so a restart does not
// lose warm responses. WAL mode keeps reads cheap next to the single
// writer; a background loop purges expired rows.
type SQLiteBackend struct {
	db        *sql.DB
	done      chan struct{}
	closeOnce sync.Once

	getStmt   *sql.Stmt
	setStmt   *sql.Stmt
	delStmt   *sql.Stmt
	purgeStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// PurgeInterval is how often expired rows are deleted.
	// Default: 5 minutes
	PurgeInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom
// configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.PurgeInterval == 0 {
		cfg.PurgeInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:   db,
		done: make(chan struct{}),
	}
	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go backend.purgeLoop(cfg.PurgeInterval)
	return backend, nil
}

func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS response_cache (
		fingerprint TEXT PRIMARY KEY,
		payload     TEXT NOT NULL,
		expires_at  INTEGER NOT NULL,
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_response_cache_expires
		ON response_cache (expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteBackend) prepareStatements() error {
	var err error
	if s.getStmt, err = s.db.Prepare(
		`SELECT payload, expires_at FROM response_cache WHERE fingerprint = ?`); err != nil {
		return err
	}
	if s.setStmt, err = s.db.Prepare(
		`INSERT INTO response_cache (fingerprint, payload, expires_at, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		   payload = excluded.payload, expires_at = excluded.expires_at`); err != nil {
		return err
	}
	if s.delStmt, err = s.db.Prepare(
		`DELETE FROM response_cache WHERE fingerprint = ?`); err != nil {
		return err
	}
	if s.purgeStmt, err = s.db.Prepare(
		`DELETE FROM response_cache WHERE expires_at < ?`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var payload string
	var expiresAt int64
	err := s.getStmt.QueryRowContext(ctx, key).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	if time.Now().Unix() >= expiresAt {
		return "", false, nil
	}
	return payload, true, nil
}

func (s *SQLiteBackend) Set(ctx context.Context, key, payload string, ttl time.Duration) error {
	now := time.Now()
	_, err := s.setStmt.ExecContext(ctx, key, payload, now.Add(ttl).Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	_, err := s.delStmt.ExecContext(ctx, key)
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Close stops the purge loop and closes the database.
func (s *SQLiteBackend) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteBackend) purgeLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.purgeStmt.Exec(time.Now().Unix())
		case <-s.done:
			return
		}
	}
}
