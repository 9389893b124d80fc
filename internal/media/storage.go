package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Storage persists media and returns a public URL for it.
type Storage interface {
	Save(ctx context.Context, category Category, name string, data []byte) (string, error)
}

// ErrInvalidName is returned for names that would escape the storage root.
var ErrInvalidName = errors.New("invalid media name")

// SafeName rejects names with path separators or traversal sequences.
func SafeName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Local writes media below Dir and serves it through the bot's own file
// endpoints at BaseURL.
type Local struct {
	Dir     string
	BaseURL string
	logger  *zap.Logger
}

func NewLocal(dir, baseURL string, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Path returns where a stored file lives on disk.
func (l *Local) Path(category Category, name string) string {
	return filepath.Join(l.Dir, string(category), name)
}

// Save writes the file, creating the category directory on demand.
func (l *Local) Save(_ context.Context, category Category, name string, data []byte) (string, error) {
	if err := SafeName(name); err != nil {
		return "", err
	}

	dir := filepath.Join(l.Dir, string(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}

	// write then rename so readers never see a partial file
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write media: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close media: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		l.logger.Debug("chmod media failed", zap.Error(err))
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store media: %w", err)
	}

	return l.BaseURL + "/" + string(category) + "/" + url.PathEscape(name), nil
}

// Cleanup removes files older than the retention period and reports how many
// were deleted.
func (l *Local) Cleanup(retention time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-retention)
	removed := 0

	err := filepath.WalkDir(l.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				l.logger.Warn("removing expired media failed", zap.String("path", path), zap.Error(err))
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("cleanup media: %w", err)
	}

	return removed, nil
}

// Stats summarizes stored media per category.
type Stats struct {
	Files map[Category]int
	Bytes map[Category]int64
}

// Stats walks the storage directory.
func (l *Local) Stats() (*Stats, error) {
	stats := &Stats{Files: map[Category]int{}, Bytes: map[Category]int64{}}

	entries, err := os.ReadDir(l.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read media directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		category := Category(entry.Name())
		files, err := os.ReadDir(filepath.Join(l.Dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", category, err)
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil || f.IsDir() {
				continue
			}
			stats.Files[category]++
			stats.Bytes[category] += info.Size()
		}
	}

	return stats, nil
}
