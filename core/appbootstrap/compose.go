package appbootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"mdip/api"
	"mdip/config"
	"mdip/core/auth"
	"mdip/core/backups"
	"mdip/core/maintenance"
	"mdip/core/store"
	"mdip/core/utils"
)

// Runtime holds everything the CLI commands share: one database handle, the stores on top
// of it and the auth service. Close releases the database.
type Runtime struct {
	Config  *config.AppConfig
	Logger  *utils.Logger
	DB      *sql.DB
	Users   store.UsersStore
	Audits  store.AuditStore
	Records store.RecordsStore
	Auth    *auth.Service
	Backups *backups.Service
}

// Open connects to the configured database and brings the schema up to date.
func Open(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*Runtime, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	rt, err := composeRuntime(cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return rt, nil
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*Runtime, error) {
	users := store.NewUsersStore(db)
	audits := store.NewAuditStore(db)
	records := store.NewRecordsStore(db)
	authSvc, err := auth.NewService(users, audits, nil, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Users:   users,
		Audits:  audits,
		Records: records,
		Auth:    authSvc,
		Backups: backups.NewService(cfg, db, audits, logger),
	}, nil
}

// NewServer wires the HTTP API and its background workers.
func (rt *Runtime) NewServer() (*api.Server, error) {
	tokens, err := auth.NewTokenIssuer(rt.Config, rt.Logger)
	if err != nil {
		return nil, err
	}
	scheduler := maintenance.NewScheduler(rt.Config.Maintenance, rt.Audits, rt.Logger).WithBackups(rt.Backups)
	return api.NewServer(rt.Config, api.ServerDeps{
		DB:      rt.DB,
		Auth:    rt.Auth,
		Tokens:  tokens,
		Records: rt.Records,
		Audits:  rt.Audits,
		Backups: rt.Backups,
		Workers: []api.BackgroundWorker{scheduler},
	}, rt.Logger), nil
}

func (rt *Runtime) Close() error {
	if rt == nil || rt.DB == nil {
		return nil
	}
	return rt.DB.Close()
}
