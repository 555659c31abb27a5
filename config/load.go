package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"
)

// Load reads the config file at path (YAML or TOML, chosen by extension) with environment
// overrides. An empty path reads the environment only.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	var err error
	if strings.TrimSpace(path) != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if c.IsPostgres() && strings.TrimSpace(c.DBURL) == "" {
		return errors.New("db_url is required for postgres")
	}
	if !c.IsPostgres() && strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db_path is required for sqlite")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Auth.Lockout.Enabled {
		if c.Auth.Lockout.MaxAttempts <= 0 {
			return errors.New("lockout max_attempts must be positive")
		}
		if c.Auth.Lockout.Cooldown <= 0 {
			return errors.New("lockout cooldown must be positive")
		}
	}
	if c.TLSEnabled && (c.TLSCert == "" || c.TLSKey == "") {
		return errors.New("tls_cert and tls_key are required when tls is enabled")
	}
	if c.Maintenance.Enabled {
		if _, err := cron.ParseStandard(c.Maintenance.AuditPruneSchedule); err != nil {
			return fmt.Errorf("audit_prune_schedule: %w", err)
		}
		if strings.TrimSpace(c.Maintenance.BackupSchedule) != "" {
			if _, err := cron.ParseStandard(c.Maintenance.BackupSchedule); err != nil {
				return fmt.Errorf("backup_schedule: %w", err)
			}
		}
	}
	if c.Backups.Keep < 0 {
		return errors.New("backups keep must not be negative")
	}
	return nil
}
