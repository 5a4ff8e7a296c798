package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the common Store contract against s.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, KeyResumeHole)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyResumeHole, "5"))
	require.NoError(t, s.Set(ctx, KeyResumeHole, "6"))
	v, ok, err := s.Get(ctx, KeyResumeHole)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "6", v)

	require.NoError(t, s.Delete(ctx, KeyResumeHole))
	require.NoError(t, s.Delete(ctx, KeyResumeHole))
	_, ok, err = s.Get(ctx, KeyResumeHole)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestPrefixedIsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	a := Prefixed(mem, SessionPrefix("a"))
	b := Prefixed(mem, SessionPrefix("b"))

	require.NoError(t, a.Set(ctx, KeyHoleCount, "9"))
	require.NoError(t, b.Set(ctx, KeyHoleCount, "18"))

	v, _, _ := a.Get(ctx, KeyHoleCount)
	assert.Equal(t, "9", v)
	v, _, _ = b.Get(ctx, KeyHoleCount)
	assert.Equal(t, "18", v)

	require.NoError(t, a.(Purger).DeletePrefix(ctx, ""))
	_, ok, _ := a.Get(ctx, KeyHoleCount)
	assert.False(t, ok)
	_, ok, _ = b.Get(ctx, KeyHoleCount)
	assert.True(t, ok)
	assert.Equal(t, 1, mem.Len())
}

func TestPrefixesEscapeSeparators(t *testing.T) {
	assert.Equal(t, "u:a%3Ab:", UserPrefix("a:b"))
	assert.NotEqual(t, UserPrefix("a:b"), UserPrefix("a_b"))
	assert.NotEqual(t, SessionPrefix("x%3Ay"), SessionPrefix("x:y"))
}

func TestScopesIn(t *testing.T) {
	e, d := NewMemory(), NewMemory()
	sc := Scopes{Ephemeral: e, Durable: d}
	assert.Same(t, e, sc.In(Ephemeral).(*Memory))
	assert.Same(t, d, sc.In(Durable).(*Memory))
}

func TestSQLStore(t *testing.T) {
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE kv_entries (entry_key TEXT PRIMARY KEY, entry_value TEXT NOT NULL, updated_at TEXT NOT NULL)`)
	require.NoError(t, err)

	s := NewSQL(db)
	exerciseStore(t, s)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "u:p_1:a", "1"))
	require.NoError(t, s.Set(ctx, "u:px1:a", "2"))
	require.NoError(t, s.DeletePrefix(ctx, "u:p_1:"))

	_, ok, _ := s.Get(ctx, "u:p_1:a")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "u:px1:a")
	assert.True(t, ok, "underscore in prefix must not act as a wildcard")
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	r, err := NewRedis(context.Background(), url)
	require.NoError(t, err)
	defer r.Close()

	s := Prefixed(r, UserPrefix(t.Name()))
	exerciseStore(t, s)
	require.NoError(t, s.(Purger).DeletePrefix(context.Background(), ""))
}
