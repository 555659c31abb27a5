package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mdip/config"
	"mdip/core/utils"

	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(FULL)",
	"foreign_keys(1)",
}

// NewDB opens the configured database. SQLite gets a single connection so every write is
// serialized and synchronous=FULL makes an acknowledged write durable.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	if cfg.IsPostgres() {
		db, err := sql.Open("pgx", cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
		if err := pingDB(db); err != nil {
			db.Close()
			return nil, err
		}
		if logger != nil {
			logger.Printf("database opened driver=postgres")
		}
		return db, nil
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", sqliteDSN(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := pingDB(db); err != nil {
		db.Close()
		return nil, err
	}
	if logger != nil {
		logger.Printf("database opened driver=sqlite path=%s", cfg.DBPath)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

func pingDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

func isPostgresDB(db *sql.DB) bool {
	if db == nil {
		return false
	}
	_, ok := db.Driver().(*stdlib.Driver)
	return ok
}

// binder rewrites '?' placeholders into $n for postgres. Queries in this package never
// contain literal question marks.
type binder bool

func newBinder(db *sql.DB) binder {
	return binder(isPostgresDB(db))
}

func (b binder) q(query string) string {
	if !b {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}
