package kv

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQL is a durable Store backed by the kv_entries table.
// The table is created by the embedded migrations.
type SQL struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQL wraps an open database handle.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db, now: time.Now}
}

func (s *SQL) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.GetContext(ctx, &v, s.db.Rebind(`SELECT entry_value FROM kv_entries WHERE entry_key=?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *SQL) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
        INSERT INTO kv_entries (entry_key, entry_value, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT (entry_key) DO UPDATE
            SET entry_value = excluded.entry_value, updated_at = excluded.updated_at`),
		key, value, s.now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM kv_entries WHERE entry_key=?`), key)
	return err
}

func (s *SQL) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM kv_entries WHERE entry_key LIKE ? ESCAPE '\'`),
		escapeLike(prefix)+"%")
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
