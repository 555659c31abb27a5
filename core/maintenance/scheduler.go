package maintenance

import (
	"context"
	"strconv"
	"sync"
	"time"

	"mdip/config"
	"mdip/core/store"
	"mdip/core/utils"

	"github.com/robfig/cron/v3"
)

// BackupRunner is the slice of the backup service the scheduler needs.
type BackupRunner interface {
	RunScheduled(ctx context.Context) error
}

// Scheduler runs periodic housekeeping: pruning the activity log past its retention window
// and, when a backup schedule is set, taking database backups.
type Scheduler struct {
	cfg     config.MaintenanceConfig
	audits  store.AuditStore
	backups BackupRunner
	logger  *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewScheduler(cfg config.MaintenanceConfig, audits store.AuditStore, logger *utils.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, audits: audits, logger: logger}
}

// WithBackups attaches a backup job. It only runs when cfg.BackupSchedule is set.
func (s *Scheduler) WithBackups(b BackupRunner) *Scheduler {
	s.backups = b
	return s
}

func (s *Scheduler) StartWithContext(ctx context.Context) error {
	if s == nil || s.audits == nil || !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.cfg.AuditPruneSchedule, func() {
		if _, err := s.RunOnce(runCtx, time.Now().UTC()); err != nil {
			s.logger.Errorf("audit prune failed: %v", err)
		}
	}); err != nil {
		cancel()
		return err
	}
	if s.backups != nil && s.cfg.BackupSchedule != "" {
		if _, err := c.AddFunc(s.cfg.BackupSchedule, func() {
			if err := s.backups.RunScheduled(runCtx); err != nil {
				s.logger.Errorf("scheduled backup failed: %v", err)
			}
		}); err != nil {
			cancel()
			return err
		}
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true
	s.logger.Printf("maintenance scheduler started schedule=%q retention_days=%d backup_schedule=%q", s.cfg.AuditPruneSchedule, s.cfg.AuditRetentionDays, s.cfg.BackupSchedule)
	return nil
}

// StopWithContext stops scheduling and waits for a running job until ctx expires.
func (s *Scheduler) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	wasRunning := s.running
	s.cron = nil
	s.cancel = nil
	s.running = false
	s.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	done := c.Stop()
	select {
	case <-done.Done():
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// RunOnce deletes activity entries older than the retention window measured from now.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.audits == nil || s.cfg.AuditRetentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.UTC().AddDate(0, 0, -s.cfg.AuditRetentionDays)
	n, err := s.audits.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Printf("audit prune removed=%d before=%s", n, cutoff.Format(time.RFC3339))
		_ = s.audits.Log(ctx, "system", "maintenance.audit_pruned", "removed="+strconv.FormatInt(n, 10))
	}
	return n, nil
}
