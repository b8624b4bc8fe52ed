package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const archiveTimeLayout = "20060102-150405"

// ArchiveLog renames the current daemon log in dir to a timestamped file so
// a new run starts with an empty log. A missing log is not an error.
func ArchiveLog(dir string, now time.Time) (string, error) {
	current := filepath.Join(dir, LogFileName)
	info, err := os.Stat(current)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat log: %w", err)
	}
	if info.Size() == 0 {
		return "", nil
	}
	base := strings.TrimSuffix(LogFileName, filepath.Ext(LogFileName))
	target := filepath.Join(dir, fmt.Sprintf("%s-%s.log", base, now.UTC().Format(archiveTimeLayout)))
	if err := os.Rename(current, target); err != nil {
		return "", fmt.Errorf("archive log: %w", err)
	}
	return target, nil
}

// PruneArchives removes archived logs in dir older than retentionDays.
// A retentionDays value of 0 disables pruning.
func PruneArchives(logger *slog.Logger, dir string, retentionDays int, now time.Time) int {
	if retentionDays <= 0 || strings.TrimSpace(dir) == "" {
		return 0
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	base := strings.TrimSuffix(LogFileName, filepath.Ext(LogFileName))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == LogFileName {
			continue
		}
		if matched, _ := filepath.Match(base+"-*.log", name); !matched {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}
