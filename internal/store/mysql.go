package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"field-sync-service/internal/config"
	"field-sync-service/internal/database"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// MySQLStore keeps entries in a MySQL table, for agents that run next to a
// shared database instead of on a handset.
type MySQLStore struct {
	db    *database.Database
	table string
}

func NewMySQLStore(ctx context.Context, cfg config.DatabaseConnection) (*MySQLStore, error) {
	table := cfg.Table
	if table == "" {
		table = "kv_entries"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid kv table name %q", table)
	}

	db, err := database.NewDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &MySQLStore{db: db, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *MySQLStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		k          VARCHAR(191) NOT NULL PRIMARY KEY,
		v          LONGTEXT     NOT NULL,
		updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.table)

	if _, err := s.db.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	return nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT v FROM %s WHERE k = ?`, s.table)

	var v string
	err := s.db.DB.QueryRowContext(ctx, query, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("mysql get %s: %w", key, err)
	}

	return v, true, nil
}

func (s *MySQLStore) Set(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`INSERT INTO %s (k, v, updated_at)
			  VALUES (?, ?, NOW())
			  ON DUPLICATE KEY UPDATE
			  v = VALUES(v),
			  updated_at = NOW()`, s.table)

	err := s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, key, value)
		return err
	})
	if err != nil {
		return fmt.Errorf("mysql set %s: %w", key, err)
	}
	return nil
}

func (s *MySQLStore) Remove(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE k = ?`, s.table)

	if _, err := s.db.DB.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("mysql remove %s: %w", key, err)
	}
	return nil
}
