// Package staging keeps the download directory tidy: it removes partial
// yt-dlp files left by interrupted downloads and media that no job
// references any more.
package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"graphmem/internal/logging"
)

// Result contains the outcome of a cleanup pass.
type Result struct {
	Removed []string
	Bytes   int64
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Options controls a cleanup pass.
type Options struct {
	// DryRun reports what would be removed without touching the filesystem.
	DryRun bool
	Logger *slog.Logger
}

var partialMarkers = []string{".part-frag", ".temp.", ".ytdl"}

// IsPartial reports whether name looks like an unfinished yt-dlp download.
func IsPartial(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".part") {
		return true
	}
	for _, marker := range partialMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// CleanPartials removes partial download files in dir older than maxAge.
func CleanPartials(ctx context.Context, dir string, maxAge time.Duration, opts Options) Result {
	cutoff := time.Now().Add(-maxAge)
	return sweep(ctx, dir, opts, "partial", func(entry os.DirEntry, info os.FileInfo) bool {
		return IsPartial(entry.Name()) && info.ModTime().Before(cutoff)
	})
}

// CleanOrphaned removes finished media in dir whose path is not in referenced.
// Partial files are left to CleanPartials.
func CleanOrphaned(ctx context.Context, dir string, referenced map[string]struct{}, opts Options) Result {
	return sweep(ctx, dir, opts, "orphan", func(entry os.DirEntry, _ os.FileInfo) bool {
		if IsPartial(entry.Name()) {
			return false
		}
		_, ok := referenced[filepath.Clean(filepath.Join(dir, entry.Name()))]
		return !ok
	})
}

func sweep(ctx context.Context, dir string, opts Options, kind string, remove func(os.DirEntry, os.FileInfo) bool) Result {
	result := Result{}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if !remove(entry, info) {
			continue
		}
		if !opts.DryRun {
			if err := os.Remove(path); err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
				logging.WarnWithContext(logger, "failed to remove download file", "download_cleanup_failed",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check download_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
				continue
			}
			logger.Info("removed download file",
				logging.String("path", path),
				logging.String("kind", kind),
				logging.Int64("bytes", info.Size()),
				logging.String(logging.FieldEventType, "download_cleanup"),
			)
		}
		result.Removed = append(result.Removed, path)
		result.Bytes += info.Size()
	}
	return result
}

// Usage reports how many files dir holds and their combined size.
func Usage(dir string) (files int, bytes int64, err error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return 0, 0, nil
	}
	err = filepath.WalkDir(dir, func(_ string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		files++
		bytes += info.Size()
		return nil
	})
	return files, bytes, err
}
