package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"mdip/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// ApplyMigrations brings the schema up to date. Databases created by earlier releases of the
// platform are upgraded in place: tables keep their names and missing columns are added.
func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	isPG := isPostgresDB(db)
	dialect, dir := goose.DialectSQLite3, "migrations/sqlite"
	if isPG {
		dialect, dir = goose.DialectPostgres, "migrations/postgres"
	}
	if err := normalizeExistingUsernames(ctx, db, isPG, logger); err != nil {
		return err
	}
	if err := applyGooseMigrations(ctx, db, dialect, dir, logger); err != nil {
		return err
	}
	if isPG {
		return nil
	}
	post := []func(context.Context, *sql.DB) error{
		ensureUserColumns,
		ensureRecordColumns,
		ensureActivityLogColumns,
		ensureIndexes,
	}
	for _, fn := range post {
		if err := fn(ctx, db); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion reports the latest goose migration recorded in the database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	dialect, dir := goose.DialectSQLite3, "migrations/sqlite"
	if isPostgresDB(db) {
		dialect, dir = goose.DialectPostgres, "migrations/postgres"
	}
	provider, err := newGooseProvider(db, dialect, dir)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func newGooseProvider(db *sql.DB, dialect goose.Dialect, dir string) (*goose.Provider, error) {
	sub, err := fs.Sub(migrationFS, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

func applyGooseMigrations(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string, logger *utils.Logger) error {
	provider, err := newGooseProvider(db, dialect, dir)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	if logger != nil {
		for _, r := range results {
			logger.Printf("migration applied: %s (%s)", r.Source.Path, r.Duration)
		}
	}
	return nil
}

// ErrUsernameCollision means two stored accounts become the same user once usernames are
// compared case-insensitively. An operator has to rename or remove one of them.
var ErrUsernameCollision = errors.New("usernames collide after normalization")

var knownRoles = map[string]bool{"user": true, "admin": true, "editor": true, "analyst": true}

// normalizeExistingUsernames rewrites stored usernames to their normalized form before the
// case-insensitive unique index is created. Nothing is changed when two rows collide.
// Roles outside the closed set are reported, not rewritten; such accounts fail every role check.
func normalizeExistingUsernames(ctx context.Context, db *sql.DB, isPG bool, logger *utils.Logger) error {
	exists, err := usersTableExists(ctx, db, isPG)
	if err != nil || !exists {
		return err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, username, role FROM users ORDER BY id`)
	if err != nil {
		return fmt.Errorf("scan usernames: %w", err)
	}
	type storedName struct {
		id   int64
		name string
	}
	groups := map[string][]storedName{}
	var renames []storedName
	for rows.Next() {
		var id int64
		var name string
		var role sql.NullString
		if err := rows.Scan(&id, &name, &role); err != nil {
			rows.Close()
			return err
		}
		norm := utils.NormalizeUsername(name)
		groups[norm] = append(groups[norm], storedName{id: id, name: name})
		if norm != name {
			renames = append(renames, storedName{id: id, name: norm})
		}
		if !knownRoles[role.String] && logger != nil {
			logger.Warnf("user id=%d has role %q outside the known set; it is denied until an admin sets a role", id, role.String)
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	var clashes []string
	for norm, members := range groups {
		if len(members) < 2 {
			continue
		}
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, fmt.Sprintf("%q(id=%d)", m.name, m.id))
		}
		clashes = append(clashes, norm+": "+strings.Join(names, ", "))
	}
	if len(clashes) > 0 {
		sort.Strings(clashes)
		return fmt.Errorf("%w: %s", ErrUsernameCollision, strings.Join(clashes, "; "))
	}
	if len(renames) == 0 {
		return nil
	}
	b := binder(isPG)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, r := range renames {
		if _, err := tx.ExecContext(ctx, b.q(`UPDATE users SET username=? WHERE id=?`), r.name, r.id); err != nil {
			return fmt.Errorf("normalize username id=%d: %w", r.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("normalized %d stored usernames", len(renames))
	}
	return nil
}

func usersTableExists(ctx context.Context, db *sql.DB, isPG bool) (bool, error) {
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='users'`
	if isPG {
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'users'`
	}
	var n int
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return false, fmt.Errorf("probe users table: %w", err)
	}
	return n > 0, nil
}

type columnDef struct {
	Name string
	SQL  string
}

func ensureColumns(ctx context.Context, db *sql.DB, table string, cols []columnDef) error {
	for _, c := range cols {
		exists, err := columnExists(ctx, db, table, c.Name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.ExecContext(ctx, c.SQL); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, c.Name, err)
		}
	}
	return nil
}

func ensureUserColumns(ctx context.Context, db *sql.DB) error {
	return ensureColumns(ctx, db, "users", []columnDef{
		{Name: "updated_at", SQL: "ALTER TABLE users ADD COLUMN updated_at TIMESTAMP"},
		{Name: "failed_attempts", SQL: "ALTER TABLE users ADD COLUMN failed_attempts INTEGER NOT NULL DEFAULT 0"},
		{Name: "locked_until", SQL: "ALTER TABLE users ADD COLUMN locked_until TIMESTAMP"},
		{Name: "last_login_at", SQL: "ALTER TABLE users ADD COLUMN last_login_at TIMESTAMP"},
		{Name: "totp_secret", SQL: "ALTER TABLE users ADD COLUMN totp_secret TEXT NOT NULL DEFAULT ''"},
		{Name: "totp_enabled", SQL: "ALTER TABLE users ADD COLUMN totp_enabled INTEGER NOT NULL DEFAULT 0"},
	})
}

func ensureRecordColumns(ctx context.Context, db *sql.DB) error {
	if err := ensureColumns(ctx, db, "cyber_incidents", []columnDef{
		{Name: "created_at", SQL: "ALTER TABLE cyber_incidents ADD COLUMN created_at TIMESTAMP"},
		{Name: "updated_at", SQL: "ALTER TABLE cyber_incidents ADD COLUMN updated_at TIMESTAMP"},
	}); err != nil {
		return err
	}
	if err := ensureColumns(ctx, db, "datasets_metadata", []columnDef{
		{Name: "created_at", SQL: "ALTER TABLE datasets_metadata ADD COLUMN created_at TIMESTAMP"},
		{Name: "updated_at", SQL: "ALTER TABLE datasets_metadata ADD COLUMN updated_at TIMESTAMP"},
	}); err != nil {
		return err
	}
	return ensureColumns(ctx, db, "it_tickets", []columnDef{
		{Name: "created_by", SQL: "ALTER TABLE it_tickets ADD COLUMN created_by TEXT"},
		{Name: "created_at", SQL: "ALTER TABLE it_tickets ADD COLUMN created_at TIMESTAMP"},
		{Name: "updated_at", SQL: "ALTER TABLE it_tickets ADD COLUMN updated_at TIMESTAMP"},
	})
}

// ensureActivityLogColumns moves the old "timestamp" column into created_at.
func ensureActivityLogColumns(ctx context.Context, db *sql.DB) error {
	exists, err := columnExists(ctx, db, "activity_log", "created_at")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := db.ExecContext(ctx, "ALTER TABLE activity_log ADD COLUMN created_at TIMESTAMP"); err != nil {
		return fmt.Errorf("add column activity_log.created_at: %w", err)
	}
	legacy, err := columnExists(ctx, db, "activity_log", "timestamp")
	if err != nil {
		return err
	}
	if legacy {
		if _, err := db.ExecContext(ctx, `UPDATE activity_log SET created_at = "timestamp" WHERE created_at IS NULL`); err != nil {
			return fmt.Errorf("backfill activity_log.created_at: %w", err)
		}
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_activity_log_created_at ON activity_log(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt interface{}
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
