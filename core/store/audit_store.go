package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mdip/core/utils"
)

type AuditRecord struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   *int64    `json:"entity_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type AuditFilter struct {
	Username     string
	ActionPrefix string
	EntityType   string
	Since        time.Time
	Limit        int
}

type AuditStore interface {
	Log(ctx context.Context, username, action, details string) error
	LogEntity(ctx context.Context, username, action, entityType string, entityID int64, details string) error
	List(ctx context.Context, filter AuditFilter) ([]AuditRecord, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type auditStore struct {
	db *sql.DB
	b  binder
}

func NewAuditStore(db *sql.DB) AuditStore {
	return &auditStore{db: db, b: newBinder(db)}
}

func (s *auditStore) Log(ctx context.Context, username, action, details string) error {
	_, err := s.db.ExecContext(ctx, s.b.q(`
		INSERT INTO activity_log(username, action, details, created_at) VALUES(?,?,?,?)`),
		auditActor(username), action, details, utils.NowUTC())
	return err
}

func (s *auditStore) LogEntity(ctx context.Context, username, action, entityType string, entityID int64, details string) error {
	_, err := s.db.ExecContext(ctx, s.b.q(`
		INSERT INTO activity_log(username, action, entity_type, entity_id, details, created_at) VALUES(?,?,?,?,?,?)`),
		auditActor(username), action, entityType, entityID, details, utils.NowUTC())
	return err
}

func (s *auditStore) List(ctx context.Context, filter AuditFilter) ([]AuditRecord, error) {
	var clauses []string
	var args []any
	if filter.Username != "" {
		clauses = append(clauses, "username=?")
		args = append(args, utils.NormalizeUsername(filter.Username))
	}
	if filter.ActionPrefix != "" {
		clauses = append(clauses, "action LIKE ?")
		args = append(args, filter.ActionPrefix+"%")
	}
	if filter.EntityType != "" {
		clauses = append(clauses, "entity_type=?")
		args = append(args, filter.EntityType)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "created_at>=?")
		args = append(args, filter.Since.UTC())
	}
	query := `SELECT id, username, action, entity_type, entity_id, details, created_at FROM activity_log`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	rows, err := s.db.QueryContext(ctx, s.b.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []AuditRecord{}
	for rows.Next() {
		var rec AuditRecord
		var entityType, details sql.NullString
		var entityID sql.NullInt64
		var created sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.Action, &entityType, &entityID, &details, &created); err != nil {
			return nil, err
		}
		rec.EntityType = entityType.String
		rec.Details = details.String
		if entityID.Valid {
			rec.EntityID = &entityID.Int64
		}
		if created.Valid {
			rec.CreatedAt = created.Time
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Prune removes entries older than before and returns how many were deleted.
func (s *auditStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.b.q(`DELETE FROM activity_log WHERE created_at < ?`), before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func auditActor(username string) string {
	if name := utils.NormalizeUsername(username); name != "" {
		return name
	}
	return "anonymous"
}
