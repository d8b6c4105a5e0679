package reliability

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackupService creates local backups of the fleet's durable state:
// the audit database and the per-account recovery snapshots. Local
// backups are the fast path; shipping them off-box is R2BackupService's
// job.
type BackupService struct {
	dataDir string
	log     zerolog.Logger
}

// NewBackupService creates a backup service rooted at dataDir.
func NewBackupService(dataDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		dataDir: dataDir,
		log:     log.With().Str("service", "backup").Logger(),
	}
}

// BackupTarget is one file the backup set includes.
type BackupTarget struct {
	// Name is the logical name ("audit", or the account label for a
	// recovery snapshot).
	Name string
	// Path is the absolute source path.
	Path string
	// IsDatabase marks SQLite files, which get an integrity check
	// during restore validation.
	IsDatabase bool
}

// CollectTargets enumerates the current backup set: the audit
// database plus every recovery snapshot present on disk. Missing
// files are skipped, not errors — a fresh install has neither.
func (s *BackupService) CollectTargets() ([]BackupTarget, error) {
	var targets []BackupTarget

	auditPath := filepath.Join(s.dataDir, "audit.db")
	if _, err := os.Stat(auditPath); err == nil {
		targets = append(targets, BackupTarget{Name: "audit", Path: auditPath, IsDatabase: true})
	}

	recoveryDir := filepath.Join(s.dataDir, "recovery")
	entries, err := os.ReadDir(recoveryDir)
	if os.IsNotExist(err) {
		return targets, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read recovery directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		targets = append(targets, BackupTarget{
			Name: strings.TrimSuffix(entry.Name(), ".json"),
			Path: filepath.Join(recoveryDir, entry.Name()),
		})
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })
	return targets, nil
}

// DailyBackup copies the current backup set into a dated directory
// under backups/, pruning directories older than seven days.
func (s *BackupService) DailyBackup() error {
	targets, err := s.CollectTargets()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		s.log.Debug().Msg("Nothing to back up yet")
		return nil
	}

	backupDir := filepath.Join(s.dataDir, "backups", time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	for _, target := range targets {
		dst := filepath.Join(backupDir, filepath.Base(target.Path))
		if err := copyFileSimple(target.Path, dst); err != nil {
			return fmt.Errorf("failed to back up %s: %w", target.Name, err)
		}
	}

	s.pruneOldBackups(7)

	s.log.Info().
		Str("backup_dir", backupDir).
		Int("files", len(targets)).
		Msg("Daily backup completed")
	return nil
}

// pruneOldBackups removes dated backup directories older than keepDays.
func (s *BackupService) pruneOldBackups(keepDays int) {
	root := filepath.Join(s.dataDir, "backups")
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -keepDays)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		day, err := time.Parse("2006-01-02", entry.Name())
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
				s.log.Warn().Err(err).Str("dir", entry.Name()).Msg("Failed to prune old backup")
			}
		}
	}
}

func copyFileSimple(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
