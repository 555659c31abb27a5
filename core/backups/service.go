package backups

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mdip/config"
	"mdip/core/backups/pgdump"
	"mdip/core/store"
	"mdip/core/utils"
)

var (
	ErrStorageMissing = errors.New("backup directory unavailable")
	ErrBusy           = errors.New("backup already running")
)

const manifestSuffix = ".json"

// Manifest is written next to every artifact.
type Manifest struct {
	Filename       string           `json:"filename"`
	CreatedAt      time.Time        `json:"created_at"`
	DBEngine       string           `json:"db_engine"`
	GooseDBVersion int64            `json:"goose_db_version"`
	Label          string           `json:"label,omitempty"`
	Checksum       string           `json:"sha256"`
	SizeBytes      int64            `json:"size_bytes"`
	EntityCounts   map[string]int64 `json:"entity_counts"`
}

type Artifact struct {
	Path     string
	Manifest Manifest
}

type Service struct {
	cfg      *config.AppConfig
	db       *sql.DB
	dumper   pgdump.Runner
	audits   store.AuditStore
	logger   *utils.Logger
	limiter  chan struct{}
	now      func() time.Time
	checksum func(path string) (string, int64, error)
}

func NewService(cfg *config.AppConfig, db *sql.DB, audits store.AuditStore, logger *utils.Logger) *Service {
	return &Service{
		cfg:      cfg,
		db:       db,
		dumper:   pgdump.NewRunner(),
		audits:   audits,
		logger:   logger,
		limiter:  make(chan struct{}, 1),
		now:      func() time.Time { return time.Now().UTC() },
		checksum: fileSHA256,
	}
}

// CreateBackup snapshots the database into the backup directory. Only one backup runs at a time;
// a second caller gets ErrBusy instead of queueing.
func (s *Service) CreateBackup(ctx context.Context, actor, label string) (*Artifact, error) {
	if s == nil || s.cfg == nil || s.db == nil {
		return nil, ErrStorageMissing
	}
	if !s.tryAcquire() {
		return nil, ErrBusy
	}
	defer s.release()

	artifact, err := s.runBackup(ctx, label)
	if err != nil {
		Log(ctx, s.audits, actor, AuditCreateFailed, "failed", "")
		if s.logger != nil {
			s.logger.Errorf("backup failed: %v", err)
		}
		return nil, err
	}
	Log(ctx, s.audits, actor, AuditCreateSuccess, "success",
		fmt.Sprintf("file=%s size=%d", artifact.Manifest.Filename, artifact.Manifest.SizeBytes))
	return artifact, nil
}

// RunScheduled is the cron entrypoint: back up, then apply retention.
func (s *Service) RunScheduled(ctx context.Context) error {
	if _, err := s.CreateBackup(ctx, "system", "scheduled"); err != nil {
		return err
	}
	_, err := s.Prune(ctx, "system")
	return err
}

func (s *Service) runBackup(ctx context.Context, label string) (*Artifact, error) {
	outDir := s.cfg.Backups.Dir
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageMissing, err)
	}
	now := s.now()
	engine := "sqlite"
	if s.cfg.IsPostgres() {
		engine = "postgres"
	}
	filename := buildBackupFilename(engine, label, now)
	finalPath := filepath.Join(outDir, filename)
	if _, err := os.Stat(finalPath); err == nil {
		return nil, fmt.Errorf("backup %s already exists", filename)
	}
	if err := s.dumpDatabase(ctx, engine, finalPath); err != nil {
		_ = os.Remove(finalPath)
		return nil, err
	}
	checksum, size, err := s.checksum(finalPath)
	if err != nil {
		_ = os.Remove(finalPath)
		return nil, fmt.Errorf("checksum %s: %w", filename, err)
	}
	version, err := store.SchemaVersion(ctx, s.db)
	if err != nil {
		version = 0
	}
	manifest := Manifest{
		Filename:       filename,
		CreatedAt:      now,
		DBEngine:       engine,
		GooseDBVersion: version,
		Label:          strings.TrimSpace(label),
		Checksum:       checksum,
		SizeBytes:      size,
		EntityCounts:   s.snapshotEntityCounts(ctx),
	}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		_ = os.Remove(finalPath)
		return nil, err
	}
	if err := os.WriteFile(finalPath+manifestSuffix, raw, 0o600); err != nil {
		_ = os.Remove(finalPath)
		return nil, err
	}
	return &Artifact{Path: finalPath, Manifest: manifest}, nil
}

func (s *Service) dumpDatabase(ctx context.Context, engine, outPath string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Minute)
	defer cancel()
	if engine == "sqlite" {
		_, err := s.db.ExecContext(timeoutCtx, "VACUUM INTO ?", outPath)
		return err
	}
	return s.dumper.Dump(timeoutCtx, pgdump.Options{
		BinaryPath: s.cfg.Backups.PGDumpBin,
		DBURL:      s.cfg.DBURL,
		OutputPath: outPath,
	})
}

// List returns artifacts newest first. Files without a readable manifest are skipped.
func (s *Service) List(_ context.Context) ([]Artifact, error) {
	if s == nil || s.cfg == nil {
		return nil, ErrStorageMissing
	}
	entries, err := os.ReadDir(s.cfg.Backups.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Artifact{}, nil
		}
		return nil, err
	}
	out := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "backup_") || strings.HasSuffix(name, manifestSuffix) {
			continue
		}
		path := filepath.Join(s.cfg.Backups.Dir, name)
		raw, err := os.ReadFile(path + manifestSuffix)
		if err != nil {
			continue
		}
		var m Manifest
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		out = append(out, Artifact{Path: path, Manifest: m})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Manifest.CreatedAt.After(out[j].Manifest.CreatedAt)
	})
	return out, nil
}

// Prune deletes everything past the newest cfg.Backups.Keep artifacts. Keep=0 disables retention.
func (s *Service) Prune(ctx context.Context, actor string) (int, error) {
	if s == nil || s.cfg == nil || s.cfg.Backups.Keep <= 0 {
		return 0, nil
	}
	items, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(items) <= s.cfg.Backups.Keep {
		return 0, nil
	}
	removed := 0
	for _, item := range items[s.cfg.Backups.Keep:] {
		if err := os.Remove(item.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		_ = os.Remove(item.Path + manifestSuffix)
		removed++
		Log(ctx, s.audits, actor, AuditRetentionDeleted, "success", "file="+item.Manifest.Filename)
	}
	return removed, nil
}

func (s *Service) tryAcquire() bool {
	select {
	case s.limiter <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Service) release() {
	select {
	case <-s.limiter:
	default:
	}
}

func fileSHA256(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

func buildBackupFilename(engine, label string, now time.Time) string {
	ext := ".db"
	if engine == "postgres" {
		ext = ".dump"
	}
	ts := now.UTC().Format("2006-01-02_15-04-05")
	label = sanitizeFilenameToken(label)
	if label == "" {
		return "backup_" + ts + ext
	}
	return "backup_" + ts + "_" + label + ext
}

func sanitizeFilenameToken(in string) string {
	v := strings.TrimSpace(in)
	if v == "" {
		return ""
	}
	v = strings.ToUpper(v)
	replacer := strings.NewReplacer(
		" ", "_",
		"/", "_",
		"\\", "_",
		":", "_",
		";", "_",
		",", "_",
		"\"", "",
		"'", "",
		".", "_",
	)
	v = replacer.Replace(v)
	for strings.Contains(v, "__") {
		v = strings.ReplaceAll(v, "__", "_")
	}
	return strings.Trim(v, "_")
}
