package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"mdip/core/auth"
	"mdip/core/store"
	"mdip/core/utils"

	"gopkg.in/yaml.v3"
)

type File struct {
	Users     []User     `yaml:"users"`
	Incidents []Incident `yaml:"incidents"`
	Datasets  []Dataset  `yaml:"datasets"`
	Tickets   []Ticket   `yaml:"tickets"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type Incident struct {
	Title       string `yaml:"title"`
	Severity    string `yaml:"severity"`
	Status      string `yaml:"status"`
	Date        string `yaml:"date"`
	Description string `yaml:"description"`
	CreatedBy   string `yaml:"created_by"`
}

type Dataset struct {
	Name      string `yaml:"name"`
	Source    string `yaml:"source"`
	Category  string `yaml:"category"`
	Size      int64  `yaml:"size"`
	Format    string `yaml:"format"`
	CreatedBy string `yaml:"created_by"`
}

type Ticket struct {
	Title       string `yaml:"title"`
	Priority    string `yaml:"priority"`
	Status      string `yaml:"status"`
	CreatedDate string `yaml:"created_date"`
	AssignedTo  string `yaml:"assigned_to"`
	Description string `yaml:"description"`
	Resolution  string `yaml:"resolution"`
	CreatedBy   string `yaml:"created_by"`
}

type Result struct {
	UsersCreated int
	UsersSkipped int
	Incidents    int
	Datasets     int
	Tickets      int
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// Seeder loads a seed file. Accounts go through the auth service so passwords are hashed
// and validated like any registration. Existing usernames are left untouched, and record
// tables are only filled while empty, so applying the same file twice is harmless.
type Seeder struct {
	auth    *auth.Service
	records store.RecordsStore
	logger  *utils.Logger
}

func NewSeeder(svc *auth.Service, records store.RecordsStore, logger *utils.Logger) *Seeder {
	return &Seeder{auth: svc, records: records, logger: logger}
}

func (s *Seeder) Apply(ctx context.Context, f *File) (Result, error) {
	var res Result
	if f == nil {
		return res, nil
	}
	actor := auth.SystemActor()
	for _, u := range f.Users {
		if u.Username == "" || u.Password == "" {
			continue
		}
		_, err := s.auth.Register(ctx, actor, u.Username, u.Password, u.Role)
		switch {
		case err == nil:
			res.UsersCreated++
		case errors.Is(err, auth.ErrUsernameTaken):
			res.UsersSkipped++
		default:
			return res, fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}
	if err := s.seedIncidents(ctx, f.Incidents, &res); err != nil {
		return res, err
	}
	if err := s.seedDatasets(ctx, f.Datasets, &res); err != nil {
		return res, err
	}
	if err := s.seedTickets(ctx, f.Tickets, &res); err != nil {
		return res, err
	}
	s.logger.Printf("seed applied users_created=%d users_skipped=%d incidents=%d datasets=%d tickets=%d",
		res.UsersCreated, res.UsersSkipped, res.Incidents, res.Datasets, res.Tickets)
	return res, nil
}

func (s *Seeder) seedIncidents(ctx context.Context, items []Incident, res *Result) error {
	if len(items) == 0 {
		return nil
	}
	existing, err := s.records.ListIncidents(ctx, store.RecordFilter{Limit: 1})
	if err != nil || len(existing) > 0 {
		return err
	}
	for _, it := range items {
		inc := &store.Incident{Title: it.Title, Severity: it.Severity, Status: it.Status, Date: it.Date, Description: it.Description, CreatedBy: it.CreatedBy}
		if _, err := s.records.CreateIncident(ctx, inc); err != nil {
			return fmt.Errorf("seed incident %q: %w", it.Title, err)
		}
		res.Incidents++
	}
	return nil
}

func (s *Seeder) seedDatasets(ctx context.Context, items []Dataset, res *Result) error {
	if len(items) == 0 {
		return nil
	}
	existing, err := s.records.ListDatasets(ctx, store.RecordFilter{Limit: 1})
	if err != nil || len(existing) > 0 {
		return err
	}
	for _, it := range items {
		ds := &store.Dataset{Name: it.Name, Source: it.Source, Category: it.Category, Size: it.Size, Format: it.Format, CreatedBy: it.CreatedBy}
		if _, err := s.records.CreateDataset(ctx, ds); err != nil {
			return fmt.Errorf("seed dataset %q: %w", it.Name, err)
		}
		res.Datasets++
	}
	return nil
}

func (s *Seeder) seedTickets(ctx context.Context, items []Ticket, res *Result) error {
	if len(items) == 0 {
		return nil
	}
	existing, err := s.records.ListTickets(ctx, store.RecordFilter{Limit: 1})
	if err != nil || len(existing) > 0 {
		return err
	}
	for _, it := range items {
		t := &store.Ticket{Title: it.Title, Priority: it.Priority, Status: it.Status, CreatedDate: it.CreatedDate, AssignedTo: it.AssignedTo, Description: it.Description, Resolution: it.Resolution, CreatedBy: it.CreatedBy}
		if _, err := s.records.CreateTicket(ctx, t); err != nil {
			return fmt.Errorf("seed ticket %q: %w", it.Title, err)
		}
		res.Tickets++
	}
	return nil
}
