package securestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ebu/cpa-go/pkg/cpa"
	"github.com/ebu/cpa-go/pkg/logging"
)

// DefaultSQLitePath is the default database path, relative to the home directory.
const DefaultSQLitePath = ".config/cpa/tokens.db"

// SQLiteStore is a SecureStore backed by a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	sealer *Sealer
	logger *slog.Logger
}

// NewSQLiteStore opens, creating if needed, the database at path. A nil
// sealer stores payloads unencrypted.
func NewSQLiteStore(path string, sealer *Sealer) (*SQLiteStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, DefaultSQLitePath)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		sealer: sealer,
		logger: logging.Logger("SecureStore"),
	}, nil
}

func initSchema(db *sql.DB) error {
	return initTable(db, "tokens", `
		CREATE TABLE IF NOT EXISTS tokens (
			key         TEXT PRIMARY KEY,
			payload     BLOB NOT NULL,
			sealed      INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		);`,
	)
}

func initTable(db *sql.DB, name string, stmt string) error {
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to init '%s' table schema: %w", name, err)
	}
	return nil
}

// Load implements cpa.SecureStore.
func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, error) {
	var (
		payload []byte
		sealed  bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, sealed FROM tokens WHERE key = ?`, key,
	).Scan(&payload, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cpa.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token: %w", err)
	}

	if !sealed {
		return payload, nil
	}
	if s.sealer == nil {
		return nil, fmt.Errorf("token for %q is encrypted but no key is configured", key)
	}
	return s.sealer.Open(key, payload)
}

// Save implements cpa.SecureStore.
func (s *SQLiteStore) Save(ctx context.Context, key string, payload []byte) error {
	sealed := false
	if s.sealer != nil {
		var err error
		payload, err = s.sealer.Seal(key, payload)
		if err != nil {
			return err
		}
		sealed = true
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (key, payload, sealed, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			sealed = excluded.sealed,
			updated_at = excluded.updated_at;`,
		key, payload, sealed, time.Now().Unix(),
	)
	if err != nil {
		s.logger.Warn("SECURITY_AUDIT: token storage failed",
			"event", "token_store_failed",
			"key", key,
			"error", err.Error(),
		)
		return fmt.Errorf("failed to save token: %w", err)
	}

	s.logger.Info("SECURITY_AUDIT: token stored",
		"event", "token_stored",
		"key", key,
		"sealed", sealed,
	)
	return nil
}

// Erase implements cpa.SecureStore.
func (s *SQLiteStore) Erase(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		s.logger.Info("SECURITY_AUDIT: token deleted",
			"event", "token_deleted",
			"key", key,
		)
	}
	return nil
}

// Keys returns the stored keys in lexical order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM tokens ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan token key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
