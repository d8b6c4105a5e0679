package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// backupFilePrefix and backupFileSuffix define the archive naming
// scheme: fleet-backup-YYYY-MM-DD-HHMMSS.tar.gz
const (
	backupFilePrefix = "fleet-backup-"
	backupFileSuffix = ".tar.gz"
)

// minBackupsToKeep is the floor the rotation never deletes below,
// regardless of retention age.
const minBackupsToKeep = 3

// DatabaseMetadata describes one SQLite file inside a backup archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// SnapshotMetadata describes one recovery snapshot inside a backup
// archive.
type SnapshotMetadata struct {
	Account   string `json:"account"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupMetadata is the manifest written into every archive.
type BackupMetadata struct {
	Timestamp    time.Time          `json:"timestamp"`
	Version      string             `json:"version"`
	FleetVersion string             `json:"fleet_version"`
	Databases    []DatabaseMetadata `json:"databases"`
	Snapshots    []SnapshotMetadata `json:"snapshots"`
}

// BackupInfo summarizes one archive present in the R2 bucket.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// R2BackupService ships the fleet's durable state to Cloudflare R2:
// it archives the backup set, uploads it, lists what the bucket
// holds, and rotates old archives on a retention schedule.
type R2BackupService struct {
	r2Client      *R2Client
	backupService *BackupService
	dataDir       string
	log           zerolog.Logger
}

// NewR2BackupService creates a new R2 backup service.
func NewR2BackupService(r2Client *R2Client, backupService *BackupService, dataDir string, log zerolog.Logger) *R2BackupService {
	return &R2BackupService{
		r2Client:      r2Client,
		backupService: backupService,
		dataDir:       dataDir,
		log:           log.With().Str("service", "r2_backup").Logger(),
	}
}

// GetR2Client exposes the underlying client for connection tests and
// raw object operations from the HTTP handlers.
func (s *R2BackupService) GetR2Client() *R2Client { return s.r2Client }

// CreateAndUploadBackup archives the current backup set and uploads
// it to R2 under a timestamped key.
func (s *R2BackupService) CreateAndUploadBackup(ctx context.Context) error {
	startTime := time.Now()

	targets, err := s.backupService.CollectTargets()
	if err != nil {
		return fmt.Errorf("failed to collect backup targets: %w", err)
	}
	if len(targets) == 0 {
		s.log.Info().Msg("Nothing to back up yet, skipping R2 upload")
		return nil
	}

	stagingDir, err := os.MkdirTemp(s.dataDir, "r2-backup-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	// Copy targets into staging so the archive sees a consistent set
	// even if a session writes its snapshot mid-archive.
	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
	}
	var archiveFiles []string
	for _, target := range targets {
		stagedName := filepath.Base(target.Path)
		stagedPath := filepath.Join(stagingDir, stagedName)
		if err := copyFileSimple(target.Path, stagedPath); err != nil {
			return fmt.Errorf("failed to stage %s: %w", target.Name, err)
		}

		info, err := os.Stat(stagedPath)
		if err != nil {
			return fmt.Errorf("failed to stat staged %s: %w", target.Name, err)
		}
		checksum, err := s.calculateChecksum(stagedPath)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", target.Name, err)
		}

		if target.IsDatabase {
			metadata.Databases = append(metadata.Databases, DatabaseMetadata{
				Name:      target.Name,
				Filename:  stagedName,
				SizeBytes: info.Size(),
				Checksum:  checksum,
			})
		} else {
			metadata.Snapshots = append(metadata.Snapshots, SnapshotMetadata{
				Account:   target.Name,
				Filename:  stagedName,
				SizeBytes: info.Size(),
				Checksum:  checksum,
			})
		}
		archiveFiles = append(archiveFiles, stagedName)
	}

	// Write the manifest alongside the staged files.
	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	metadataFile, err := os.Create(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	encoder := json.NewEncoder(metadataFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(metadata); err != nil {
		metadataFile.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	metadataFile.Close()
	archiveFiles = append(archiveFiles, "backup-metadata.json")

	// Build the archive.
	filename := backupFilePrefix + time.Now().UTC().Format("2006-01-02-150405") + backupFileSuffix
	archivePath := filepath.Join(stagingDir, filename)
	if err := s.createArchive(archivePath, stagingDir, archiveFiles); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	// Upload.
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	info, err := archiveFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	if err := s.r2Client.Upload(ctx, filename, archiveFile, info.Size()); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Str("filename", filename).
		Int64("size_bytes", info.Size()).
		Int("databases", len(metadata.Databases)).
		Int("snapshots", len(metadata.Snapshots)).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Backup uploaded to R2")
	return nil
}

// ListBackups returns the archives currently in the bucket, newest
// first.
func (s *R2BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.r2Client.List(ctx, backupFilePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var backups []BackupInfo
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		key := *obj.Key
		if !strings.HasPrefix(key, backupFilePrefix) || !strings.HasSuffix(key, backupFileSuffix) {
			continue
		}
		ts, err := parseBackupTimestamp(key)
		if err != nil {
			s.log.Warn().Str("key", key).Msg("Skipping backup with unparseable timestamp")
			continue
		}
		info := BackupInfo{Filename: key, Timestamp: ts}
		if obj.Size != nil {
			info.SizeBytes = *obj.Size
		}
		backups = append(backups, info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes archives older than retentionDays, always
// keeping at least minBackupsToKeep regardless of age. retentionDays
// of zero disables age-based deletion entirely.
func (s *R2BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	// Newest-first ordering means the first minBackupsToKeep entries
	// are the keepers; only look at the tail.
	for _, backup := range backups[minBackupsToKeep:] {
		if backup.Timestamp.After(cutoff) {
			continue
		}
		if err := s.r2Client.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Int("retention_days", retentionDays).Msg("Rotated old backups")
	}
	return nil
}

// calculateChecksum returns the sha256 of a file, prefixed "sha256:".
func (s *R2BackupService) calculateChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return "sha256:" + hex.EncodeToString(hasher.Sum(nil)), nil
}

// createArchive writes files (paths relative to sourceDir) into a
// tar.gz at archivePath.
func (s *R2BackupService) createArchive(archivePath, sourceDir string, files []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, name := range files {
		path := filepath.Join(sourceDir, name)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", name, err)
		}

		header := &tar.Header{
			Name:    name,
			Size:    info.Size(),
			Mode:    0644,
			ModTime: info.ModTime(),
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header for %s: %w", name, err)
		}

		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		if _, err := io.Copy(tarWriter, file); err != nil {
			file.Close()
			return fmt.Errorf("failed to write %s into archive: %w", name, err)
		}
		file.Close()
	}
	return nil
}

// parseBackupTimestamp extracts the timestamp from an archive key.
func parseBackupTimestamp(key string) (time.Time, error) {
	stamp := strings.TrimSuffix(strings.TrimPrefix(key, backupFilePrefix), backupFileSuffix)
	return time.Parse("2006-01-02-150405", stamp)
}
