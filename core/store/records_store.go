package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mdip/core/utils"
)

type Incident struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Severity    string     `json:"severity"`
	Status      string     `json:"status"`
	Date        string     `json:"date"`
	Description string     `json:"description"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type Dataset struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Source    string     `json:"source"`
	Category  string     `json:"category"`
	Size      int64      `json:"size"`
	Format    string     `json:"format"`
	CreatedBy string     `json:"created_by"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type Ticket struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	CreatedDate string     `json:"created_date"`
	AssignedTo  string     `json:"assigned_to"`
	Description string     `json:"description"`
	Resolution  string     `json:"resolution"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// RecordFilter narrows list queries. Fields that do not apply to a record type are ignored.
type RecordFilter struct {
	Status   string
	Severity string
	Priority string
	Category string
	Search   string
	Limit    int
	Offset   int
}

type DashboardStats struct {
	Incidents            int            `json:"incidents"`
	OpenIncidents        int            `json:"open_incidents"`
	Datasets             int            `json:"datasets"`
	TotalDatasetSize     int64          `json:"total_dataset_size"`
	Tickets              int            `json:"tickets"`
	OpenTickets          int            `json:"open_tickets"`
	Users                int            `json:"users"`
	SeverityDistribution map[string]int `json:"severity_distribution"`
	PriorityDistribution map[string]int `json:"priority_distribution"`
	RoleDistribution     map[string]int `json:"role_distribution"`
}

type RecordsStore interface {
	CreateIncident(ctx context.Context, inc *Incident) (int64, error)
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	ListIncidents(ctx context.Context, filter RecordFilter) ([]Incident, error)
	UpdateIncident(ctx context.Context, inc *Incident) error
	DeleteIncident(ctx context.Context, id int64) error

	CreateDataset(ctx context.Context, ds *Dataset) (int64, error)
	GetDataset(ctx context.Context, id int64) (*Dataset, error)
	ListDatasets(ctx context.Context, filter RecordFilter) ([]Dataset, error)
	UpdateDataset(ctx context.Context, ds *Dataset) error
	DeleteDataset(ctx context.Context, id int64) error

	CreateTicket(ctx context.Context, t *Ticket) (int64, error)
	GetTicket(ctx context.Context, id int64) (*Ticket, error)
	ListTickets(ctx context.Context, filter RecordFilter) ([]Ticket, error)
	UpdateTicket(ctx context.Context, t *Ticket) error
	DeleteTicket(ctx context.Context, id int64) error

	Stats(ctx context.Context) (*DashboardStats, error)
}

type recordsStore struct {
	db *sql.DB
	b  binder
}

func NewRecordsStore(db *sql.DB) RecordsStore {
	return &recordsStore{db: db, b: newBinder(db)}
}

const (
	incidentColumns = `id, title, severity, status, date, description, created_by, created_at, updated_at`
	datasetColumns  = `id, name, source, category, size, format, created_by, created_at, updated_at`
	ticketColumns   = `id, title, priority, status, created_date, assigned_to, description, resolution, created_by, created_at, updated_at`
)

func (s *recordsStore) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, s.b.q(query), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *recordsStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.b.q(query), args...)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *recordsStore) CreateIncident(ctx context.Context, inc *Incident) (int64, error) {
	now := utils.NowUTC()
	id, err := s.insert(ctx, `
		INSERT INTO cyber_incidents(title, severity, status, date, description, created_by, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?) RETURNING id`,
		inc.Title, inc.Severity, inc.Status, inc.Date, inc.Description, inc.CreatedBy, now, now)
	if err != nil {
		return 0, err
	}
	inc.ID = id
	inc.CreatedAt = &now
	inc.UpdatedAt = &now
	return id, nil
}

func (s *recordsStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, s.b.q(`SELECT `+incidentColumns+` FROM cyber_incidents WHERE id=?`), id)
	return scanIncident(row)
}

func (s *recordsStore) ListIncidents(ctx context.Context, filter RecordFilter) ([]Incident, error) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "LOWER(status)=?")
		args = append(args, strings.ToLower(filter.Status))
	}
	if filter.Severity != "" {
		clauses = append(clauses, "LOWER(severity)=?")
		args = append(args, strings.ToLower(filter.Severity))
	}
	if filter.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		q := "%" + filter.Search + "%"
		args = append(args, q, q)
	}
	query := buildListQuery("SELECT "+incidentColumns+" FROM cyber_incidents", clauses, "date DESC, id DESC", filter)
	rows, err := s.db.QueryContext(ctx, s.b.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *inc)
	}
	return res, rows.Err()
}

func (s *recordsStore) UpdateIncident(ctx context.Context, inc *Incident) error {
	now := utils.NowUTC()
	if err := s.execOne(ctx, `
		UPDATE cyber_incidents SET title=?, severity=?, status=?, date=?, description=?, updated_at=? WHERE id=?`,
		inc.Title, inc.Severity, inc.Status, inc.Date, inc.Description, now, inc.ID); err != nil {
		return err
	}
	inc.UpdatedAt = &now
	return nil
}

func (s *recordsStore) DeleteIncident(ctx context.Context, id int64) error {
	return s.execOne(ctx, `DELETE FROM cyber_incidents WHERE id=?`, id)
}

func (s *recordsStore) CreateDataset(ctx context.Context, ds *Dataset) (int64, error) {
	now := utils.NowUTC()
	id, err := s.insert(ctx, `
		INSERT INTO datasets_metadata(name, source, category, size, format, created_by, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?) RETURNING id`,
		ds.Name, ds.Source, ds.Category, ds.Size, ds.Format, ds.CreatedBy, now, now)
	if err != nil {
		return 0, err
	}
	ds.ID = id
	ds.CreatedAt = &now
	ds.UpdatedAt = &now
	return id, nil
}

func (s *recordsStore) GetDataset(ctx context.Context, id int64) (*Dataset, error) {
	row := s.db.QueryRowContext(ctx, s.b.q(`SELECT `+datasetColumns+` FROM datasets_metadata WHERE id=?`), id)
	return scanDataset(row)
}

func (s *recordsStore) ListDatasets(ctx context.Context, filter RecordFilter) ([]Dataset, error) {
	var clauses []string
	var args []any
	if filter.Category != "" {
		clauses = append(clauses, "LOWER(category)=?")
		args = append(args, strings.ToLower(filter.Category))
	}
	if filter.Search != "" {
		clauses = append(clauses, "(name LIKE ? OR source LIKE ?)")
		q := "%" + filter.Search + "%"
		args = append(args, q, q)
	}
	query := buildListQuery("SELECT "+datasetColumns+" FROM datasets_metadata", clauses, "id DESC", filter)
	rows, err := s.db.QueryContext(ctx, s.b.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Dataset{}
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *ds)
	}
	return res, rows.Err()
}

func (s *recordsStore) UpdateDataset(ctx context.Context, ds *Dataset) error {
	now := utils.NowUTC()
	if err := s.execOne(ctx, `
		UPDATE datasets_metadata SET name=?, source=?, category=?, size=?, format=?, updated_at=? WHERE id=?`,
		ds.Name, ds.Source, ds.Category, ds.Size, ds.Format, now, ds.ID); err != nil {
		return err
	}
	ds.UpdatedAt = &now
	return nil
}

func (s *recordsStore) DeleteDataset(ctx context.Context, id int64) error {
	return s.execOne(ctx, `DELETE FROM datasets_metadata WHERE id=?`, id)
}

func (s *recordsStore) CreateTicket(ctx context.Context, t *Ticket) (int64, error) {
	now := utils.NowUTC()
	id, err := s.insert(ctx, `
		INSERT INTO it_tickets(title, priority, status, created_date, assigned_to, description, resolution, created_by, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?) RETURNING id`,
		t.Title, t.Priority, t.Status, t.CreatedDate, t.AssignedTo, t.Description, t.Resolution, t.CreatedBy, now, now)
	if err != nil {
		return 0, err
	}
	t.ID = id
	t.CreatedAt = &now
	t.UpdatedAt = &now
	return id, nil
}

func (s *recordsStore) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx, s.b.q(`SELECT `+ticketColumns+` FROM it_tickets WHERE id=?`), id)
	return scanTicket(row)
}

func (s *recordsStore) ListTickets(ctx context.Context, filter RecordFilter) ([]Ticket, error) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "LOWER(status)=?")
		args = append(args, strings.ToLower(filter.Status))
	}
	if filter.Priority != "" {
		clauses = append(clauses, "LOWER(priority)=?")
		args = append(args, strings.ToLower(filter.Priority))
	}
	if filter.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ? OR assigned_to LIKE ?)")
		q := "%" + filter.Search + "%"
		args = append(args, q, q, q)
	}
	query := buildListQuery("SELECT "+ticketColumns+" FROM it_tickets", clauses, "created_date DESC, id DESC", filter)
	rows, err := s.db.QueryContext(ctx, s.b.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

func (s *recordsStore) UpdateTicket(ctx context.Context, t *Ticket) error {
	now := utils.NowUTC()
	if err := s.execOne(ctx, `
		UPDATE it_tickets SET title=?, priority=?, status=?, created_date=?, assigned_to=?, description=?, resolution=?, updated_at=? WHERE id=?`,
		t.Title, t.Priority, t.Status, t.CreatedDate, t.AssignedTo, t.Description, t.Resolution, now, t.ID); err != nil {
		return err
	}
	t.UpdatedAt = &now
	return nil
}

func (s *recordsStore) DeleteTicket(ctx context.Context, id int64) error {
	return s.execOne(ctx, `DELETE FROM it_tickets WHERE id=?`, id)
}

func (s *recordsStore) Stats(ctx context.Context) (*DashboardStats, error) {
	st := &DashboardStats{}
	counts := []struct {
		query string
		dest  any
	}{
		{`SELECT COUNT(*) FROM cyber_incidents`, &st.Incidents},
		{`SELECT COUNT(*) FROM cyber_incidents WHERE LOWER(status)='open'`, &st.OpenIncidents},
		{`SELECT COUNT(*) FROM datasets_metadata`, &st.Datasets},
		{`SELECT CAST(COALESCE(SUM(size), 0) AS BIGINT) FROM datasets_metadata`, &st.TotalDatasetSize},
		{`SELECT COUNT(*) FROM it_tickets`, &st.Tickets},
		{`SELECT COUNT(*) FROM it_tickets WHERE LOWER(status)='open'`, &st.OpenTickets},
		{`SELECT COUNT(*) FROM users`, &st.Users},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}
	var err error
	if st.SeverityDistribution, err = s.distribution(ctx, `SELECT severity, COUNT(*) FROM cyber_incidents GROUP BY severity`); err != nil {
		return nil, err
	}
	if st.PriorityDistribution, err = s.distribution(ctx, `SELECT priority, COUNT(*) FROM it_tickets GROUP BY priority`); err != nil {
		return nil, err
	}
	if st.RoleDistribution, err = s.distribution(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *recordsStore) distribution(ctx context.Context, query string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var key sql.NullString
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		res[key.String] += n
	}
	return res, rows.Err()
}

func buildListQuery(base string, clauses []string, order string, filter RecordFilter) string {
	query := base
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY " + order
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	return query
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func scanIncident(row rowScanner) (*Incident, error) {
	var inc Incident
	var title, severity, status, date, desc, createdBy sql.NullString
	var created, updated sql.NullTime
	if err := row.Scan(&inc.ID, &title, &severity, &status, &date, &desc, &createdBy, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	inc.Title, inc.Severity, inc.Status = title.String, severity.String, status.String
	inc.Date, inc.Description, inc.CreatedBy = date.String, desc.String, createdBy.String
	inc.CreatedAt = nullTimePtr(created)
	inc.UpdatedAt = nullTimePtr(updated)
	return &inc, nil
}

func scanDataset(row rowScanner) (*Dataset, error) {
	var ds Dataset
	var name, source, category, format, createdBy sql.NullString
	var size sql.NullInt64
	var created, updated sql.NullTime
	if err := row.Scan(&ds.ID, &name, &source, &category, &size, &format, &createdBy, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	ds.Name, ds.Source, ds.Category = name.String, source.String, category.String
	ds.Size, ds.Format, ds.CreatedBy = size.Int64, format.String, createdBy.String
	ds.CreatedAt = nullTimePtr(created)
	ds.UpdatedAt = nullTimePtr(updated)
	return &ds, nil
}

func scanTicket(row rowScanner) (*Ticket, error) {
	var t Ticket
	var title, priority, status, createdDate, assigned, desc, resolution, createdBy sql.NullString
	var created, updated sql.NullTime
	if err := row.Scan(&t.ID, &title, &priority, &status, &createdDate, &assigned, &desc, &resolution, &createdBy, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Title, t.Priority, t.Status = title.String, priority.String, status.String
	t.CreatedDate, t.AssignedTo, t.Description = createdDate.String, assigned.String, desc.String
	t.Resolution, t.CreatedBy = resolution.String, createdBy.String
	t.CreatedAt = nullTimePtr(created)
	t.UpdatedAt = nullTimePtr(updated)
	return &t, nil
}
