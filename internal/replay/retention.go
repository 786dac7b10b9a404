package replay

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"portalsim/engine/internal/logging"
)

// RetentionPolicy bounds how many sessions stay on disk. Zero fields are unlimited.
type RetentionPolicy struct {
	MaxSessions int
	MaxAge      time.Duration
}

// StorageStats summarises what a sweep kept.
type StorageStats struct {
	Sessions int
	Removed  int
	Bytes    int64
}

type session struct {
	path    string
	size    int64
	modTime time.Time
}

// Prune removes session directories under root that fall outside policy, newest kept
// first. Directories without a manifest are left alone.
func Prune(root string, policy RetentionPolicy, now time.Time, logger *logging.Logger) (StorageStats, error) {
	if logger == nil {
		logger = logging.L()
	}
	if strings.TrimSpace(root) == "" {
		return StorageStats{}, fmt.Errorf("replay root must be provided")
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return StorageStats{}, err
	}

	//1.- Collect sessions newest first.
	var sessions []session
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name())
		info, err := os.Stat(filepath.Join(path, ManifestFile))
		if err != nil {
			continue
		}
		size, err := directorySize(path)
		if err != nil {
			logger.Warn("replay retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		sessions = append(sessions, session{path: path, size: size, modTime: info.ModTime()})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].modTime.After(sessions[j].modTime) })

	//2.- Remove what the policy rejects.
	var stats StorageStats
	var errs error
	for _, s := range sessions {
		reason := rejectReason(policy, s, now, stats.Sessions)
		if reason == "" {
			stats.Sessions++
			stats.Bytes += s.size
			continue
		}
		if err := os.RemoveAll(s.path); err != nil {
			errs = errors.Join(errs, err)
			stats.Sessions++
			stats.Bytes += s.size
			continue
		}
		stats.Removed++
		logger.Info("replay retention removed session", logging.String("path", s.path), logging.String("reason", reason))
	}
	return stats, errs
}

func rejectReason(policy RetentionPolicy, s session, now time.Time, kept int) string {
	var reasons []string
	if policy.MaxAge > 0 && now.Sub(s.modTime) > policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", policy.MaxAge))
	}
	if policy.MaxSessions > 0 && kept >= policy.MaxSessions {
		reasons = append(reasons, fmt.Sprintf(">=%d sessions", policy.MaxSessions))
	}
	return strings.Join(reasons, ", ")
}

func directorySize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
