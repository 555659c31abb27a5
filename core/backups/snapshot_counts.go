package backups

import (
	"context"
	"database/sql"
)

var countedTables = []struct {
	key, query string
}{
	{"users", "SELECT COUNT(*) FROM users"},
	{"incidents", "SELECT COUNT(*) FROM cyber_incidents"},
	{"datasets", "SELECT COUNT(*) FROM datasets_metadata"},
	{"tickets", "SELECT COUNT(*) FROM it_tickets"},
	{"activity_log", "SELECT COUNT(*) FROM activity_log"},
}

// snapshotEntityCounts records row counts in the manifest so a restore can be sanity checked.
func (s *Service) snapshotEntityCounts(ctx context.Context) map[string]int64 {
	out := map[string]int64{}
	if s == nil || s.db == nil {
		return out
	}
	for _, t := range countedTables {
		if n, err := s.queryCount(ctx, t.query); err == nil {
			out[t.key] = n
		}
	}
	return out
}

func (s *Service) queryCount(ctx context.Context, query string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, sql.ErrConnDone
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
