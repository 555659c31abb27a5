package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"mdip/config"
	"mdip/core/utils"

	"github.com/stretchr/testify/require"
)

// legacySchema is the layout written by the first release of the platform.
var legacySchema = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT DEFAULT 'user',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE cyber_incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT, severity TEXT, status TEXT, date TEXT, description TEXT, created_by TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE it_tickets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT, priority TEXT, status TEXT, created_date TEXT, assigned_to TEXT, description TEXT, resolution TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL, action TEXT NOT NULL, entity_type TEXT, entity_id INTEGER, details TEXT,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`INSERT INTO users(username, password_hash, role) VALUES('legacy', 'abc$def', 'admin')`,
	`INSERT INTO users(username, password_hash, role) VALUES(' Carol ', 'abc$def', 'editor')`,
	`INSERT INTO users(username, password_hash, role) VALUES('nobody', 'abc$def', NULL)`,
	`INSERT INTO activity_log(username, action) VALUES('legacy', 'LOGIN')`,
}

func openRawSQLite(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.AppConfig{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "legacy.db")}
	db, err := NewDB(cfg, utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrationsUpgradeLegacyDatabase(t *testing.T) {
	db := openRawSQLite(t)
	ctx := context.Background()
	for _, stmt := range legacySchema {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	require.NoError(t, ApplyMigrations(ctx, db, utils.NewNopLogger()))

	for _, c := range []struct{ table, column string }{
		{"users", "failed_attempts"},
		{"users", "totp_enabled"},
		{"cyber_incidents", "created_at"},
		{"it_tickets", "created_by"},
		{"activity_log", "created_at"},
		{"datasets_metadata", "size"},
	} {
		ok, err := columnExists(ctx, db, c.table, c.column)
		require.NoError(t, err)
		require.Truef(t, ok, "missing %s.%s", c.table, c.column)
	}

	u, err := NewUsersStore(db).FindByUsername(ctx, "legacy")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "abc$def", u.PasswordHash)
	require.Equal(t, "admin", u.Role)

	users := NewUsersStore(db)
	carol, err := users.FindByUsername(ctx, "CAROL")
	require.NoError(t, err)
	require.NotNil(t, carol)
	require.Equal(t, "carol", carol.Username)
	_, err = users.Create(ctx, "Carol", "x$y", "user")
	require.ErrorIs(t, err, ErrDuplicateUsername)
	_, err = db.ExecContext(ctx, `INSERT INTO users(username, password_hash, role) VALUES('CAROL', 'x$y', 'user')`)
	require.True(t, isUniqueViolation(err), "raw insert differing only by case must hit the unique index: %v", err)

	nobody, err := users.FindByUsername(ctx, "nobody")
	require.NoError(t, err)
	require.NotNil(t, nobody)
	require.Empty(t, nobody.Role)

	entries, err := NewAuditStore(db).List(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, entries[0].CreatedAt.IsZero())
}

func TestMigrationsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, ApplyMigrations(context.Background(), db, utils.NewNopLogger()))
	v, err := SchemaVersion(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, int64(3), v)
}

func TestMigrationsRefuseCollidingUsernames(t *testing.T) {
	db := openRawSQLite(t)
	ctx := context.Background()
	for _, stmt := range []string{
		legacySchema[0],
		`INSERT INTO users(username, password_hash, role) VALUES('Alice', 'a$b', 'user')`,
		`INSERT INTO users(username, password_hash, role) VALUES('alice', 'c$d', 'admin')`,
		`INSERT INTO users(username, password_hash, role) VALUES('Bob', 'e$f', 'user')`,
	} {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	err := ApplyMigrations(ctx, db, utils.NewNopLogger())
	require.ErrorIs(t, err, ErrUsernameCollision)
	require.Contains(t, err.Error(), `"Alice"(id=1)`)
	require.Contains(t, err.Error(), `"alice"(id=2)`)

	// Nothing was rewritten, including the non-colliding row.
	var bob string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT username FROM users WHERE id=3`).Scan(&bob))
	require.Equal(t, "Bob", bob)
}

func TestBinderRewritesPlaceholders(t *testing.T) {
	require.Equal(t, "a=? AND b=?", binder(false).q("a=? AND b=?"))
	require.Equal(t, "a=$1 AND b=$2", binder(true).q("a=? AND b=?"))
}

func TestSQLiteDSNCarriesPragmas(t *testing.T) {
	dsn := sqliteDSN("/tmp/x.db")
	require.Contains(t, dsn, "file:/tmp/x.db?")
	require.Contains(t, dsn, "journal_mode%28WAL%29")
	require.Contains(t, dsn, "synchronous%28FULL%29")
}
