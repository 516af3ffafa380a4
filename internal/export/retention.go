package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
)

// Interval defines the automatic backup frequency.
type Interval string

const (
	IntervalManual  Interval = "manual"
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

// ParseInterval maps a config value to an Interval. Empty means manual.
func ParseInterval(s string) (Interval, error) {
	switch Interval(strings.ToLower(strings.TrimSpace(s))) {
	case "", IntervalManual:
		return IntervalManual, nil
	case IntervalDaily:
		return IntervalDaily, nil
	case IntervalWeekly:
		return IntervalWeekly, nil
	case IntervalMonthly:
		return IntervalMonthly, nil
	}
	return "", apperrors.Newf(apperrors.ErrConfigInvalid, "unknown backup interval %q", s)
}

// Duration converts the interval to a time.Duration.
func (i Interval) Duration() (time.Duration, error) {
	switch i {
	case IntervalDaily:
		return 24 * time.Hour, nil
	case IntervalWeekly:
		return 7 * 24 * time.Hour, nil
	case IntervalMonthly:
		// Approximate as 30 days
		return 30 * 24 * time.Hour, nil
	case IntervalManual:
		return 0, fmt.Errorf("manual interval has no duration")
	}
	return 0, fmt.Errorf("unknown interval: %s", i)
}

// AutoConfig controls automatic backups.
type AutoConfig struct {
	Dir       string
	Interval  Interval
	Retention int    // archives to keep, 0 keeps all
	Password  string // empty means unencrypted
}

// ArchiveInfo represents metadata about a backup archive.
type ArchiveInfo struct {
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}

// ListArchives returns the backups in dir, oldest first. A missing directory
// holds no backups.
func ListArchives(dir string) ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var archives []ArchiveInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := parseArchiveTime(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		archives = append(archives, ArchiveInfo{
			Path:      filepath.Join(dir, e.Name()),
			SizeBytes: fi.Size(),
			CreatedAt: created,
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].CreatedAt.Before(archives[j].CreatedAt)
	})
	return archives, nil
}

func parseArchiveTime(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, "nutrilog_") || !strings.HasSuffix(name, ".tar.gz") {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, "nutrilog_"), ".tar.gz")
	t, err := time.Parse("20060102_150405", stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ApplyRetention removes the oldest backups in dir so that at most keep remain.
func (s *Service) ApplyRetention(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	archives, err := ListArchives(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	if len(archives) <= keep {
		return nil, nil
	}

	var removed []string
	for _, archive := range archives[:len(archives)-keep] {
		if err := os.Remove(archive.Path); err != nil {
			s.log.Error("failed to delete old archive", err, map[string]interface{}{"path": archive.Path})
			continue
		}
		removed = append(removed, archive.Path)
		s.log.Info("deleted old archive", map[string]interface{}{"path": archive.Path})
	}
	return removed, nil
}

// RunIfDue writes a backup into cfg.Dir when the newest one is older than
// the interval, then applies retention. It reports whether a backup was taken.
func (s *Service) RunIfDue(ctx context.Context, cfg AutoConfig) (*ExportResult, bool, error) {
	if cfg.Interval == IntervalManual || cfg.Interval == "" {
		return nil, false, nil
	}
	every, err := cfg.Interval.Duration()
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrConfigInvalid, "backup interval", err)
	}

	archives, err := ListArchives(cfg.Dir)
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrDatabase, "list backups", err)
	}
	now := s.now()
	if n := len(archives); n > 0 && now.Sub(archives[n-1].CreatedAt) < every {
		return nil, false, nil
	}

	result, err := s.Export(ctx, &ExportConfig{
		OutputPath: filepath.Join(cfg.Dir, DefaultFileName(now)),
		Password:   cfg.Password,
	})
	if err != nil {
		return nil, false, err
	}

	if _, err := s.ApplyRetention(cfg.Dir, cfg.Retention); err != nil {
		// the backup itself succeeded
		s.log.Error("retention policy failed", err)
	}
	return result, true, nil
}
