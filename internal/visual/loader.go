package visual

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"photo-library-finder/internal/archive"
	"photo-library-finder/internal/phash"
	"photo-library-finder/internal/scanner"

	"github.com/spf13/afero"
)

var (
	ErrThumbnailMissing = errors.New("thumbnail not found")
	ErrItemTimeout      = errors.New("timed out hashing item")
)

// StripVersion removes the cache-busting "?v=<timestamp>" suffix.
func StripVersion(path string) string {
	if i := strings.LastIndex(path, "?v="); i >= 0 {
		return path[:i]
	}
	return path
}

// thumbnailSource is the on-disk (or in-archive) path a record is hashed from.
func thumbnailSource(f scanner.ImageRecord) string {
	if f.ThumbnailPath != "" {
		return StripVersion(f.ThumbnailPath)
	}
	return f.AbsolutePath
}

// loadThumbnail reads the raw bytes for a record. Archive entries are
// addressed as "<archive>!/<entry>".
func loadThumbnail(fs afero.Fs, f scanner.ImageRecord) ([]byte, error) {
	if !phash.IsHashable(f.Extension) {
		return nil, fmt.Errorf("%w: %s", phash.ErrUnsupportedFormat, f.Extension)
	}

	path := thumbnailSource(f)
	if archivePath, entry, ok := archive.SplitPath(path); ok {
		data, err := archive.ReadEntry(fs, archivePath, entry)
		if errors.Is(err, archive.ErrEntryNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrThumbnailMissing, path)
		}
		return data, err
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrThumbnailMissing, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// skipReason classifies a per-item failure for metrics.
func skipReason(err error) string {
	switch {
	case errors.Is(err, phash.ErrUnsupportedFormat):
		return "unsupported"
	case errors.Is(err, ErrThumbnailMissing):
		return "missing"
	case errors.Is(err, ErrItemTimeout):
		return "timeout"
	default:
		return "decode"
	}
}
