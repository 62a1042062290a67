package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Backup writes a consistent copy of the database to dir and returns its path.
func (db *DB) Backup(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	dest := filepath.Join(dir, fmt.Sprintf("gamezone_%s.db", time.Now().Format("20060102_150405")))
	// VACUUM INTO copies a live WAL database safely, unlike a file copy
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return "", fmt.Errorf("backup database: %w", err)
	}
	return dest, nil
}

// CleanupBackups removes backup files in dir older than retention.
func CleanupBackups(dir string, retention time.Duration) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-retention)
	deleted := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "gamezone_") {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, file.Name())); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

// RunBackup performs one backup and prunes old copies.
func (db *DB) RunBackup(ctx context.Context, dir string, retention time.Duration, logger *zerolog.Logger) {
	dest, err := db.Backup(ctx, dir)
	if err != nil {
		logger.Error().Err(err).Msg("backup failed")
		return
	}
	logger.Info().Str("path", dest).Msg("backup completed")

	deleted, err := CleanupBackups(dir, retention)
	if err != nil {
		logger.Error().Err(err).Msg("backup cleanup failed")
	} else if deleted > 0 {
		logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
	}
}
