package scanner

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photo-library-finder/internal/archive"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ImageRecord is a single photo or video in the library.
type ImageRecord struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AbsolutePath  string    `json:"absolute_path"`
	ThumbnailPath string    `json:"thumbnail_path"`
	Extension     string    `json:"extension"` // lowercase, no dot
	Size          int64     `json:"size"`
	DateCreated   time.Time `json:"date_created"`
	DateModified  time.Time `json:"date_modified"`
	DateAdded     time.Time `json:"date_added"`
}

// ScanOptions controls a directory walk.
type ScanOptions struct {
	Recursive       bool
	IncludeArchives bool
	Debug           bool
}

var mediaExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "bmp": true,
	"tif": true, "tiff": true, "gif": true,
	"mp4": true, "webm": true, "mov": true,
}

// IsMediaFile reports whether the path is a photo or video the library tracks.
func IsMediaFile(path string) bool {
	return mediaExtensions[Extension(path)]
}

// Extension returns the lowercase extension without the dot.
func Extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// RecordID derives a stable identifier from the absolute path.
func RecordID(absPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(absPath)).String()
}

// NewRecord builds a record for a file on disk. The thumbnail path carries a
// cache-busting suffix tied to the modification time. DateCreated is left
// zero: afero.Fs exposes only the modification time, so month grouping
// starts at DateModified for scanned files.
func NewRecord(absPath string, size int64, modTime, added time.Time) ImageRecord {
	return ImageRecord{
		ID:            RecordID(absPath),
		Name:          filepath.Base(absPath),
		AbsolutePath:  absPath,
		ThumbnailPath: fmt.Sprintf("%s?v=%d", absPath, modTime.UnixMilli()),
		Extension:     Extension(absPath),
		Size:          size,
		DateModified:  modTime,
		DateAdded:     added,
	}
}

// ScanDirectory walks dir and returns a record for every media file found.
// Images inside zip/rar/7z archives are included when IncludeArchives is set.
func ScanDirectory(fs afero.Fs, dir string, opts ScanOptions) ([]ImageRecord, error) {
	var records []ImageRecord
	added := time.Now()

	root, err := filepath.Abs(dir)
	if err != nil {
		root = dir
	}

	err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if !opts.Recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if opts.IncludeArchives && archive.IsArchive(path) {
			entries, err := archive.ListImages(fs, path)
			if err != nil {
				if opts.Debug {
					log.Printf("[SCAN] Skipped archive %s: %v", path, err)
				}
				return nil
			}
			for _, e := range entries {
				modTime := e.ModTime
				if modTime.IsZero() {
					modTime = info.ModTime()
				}
				records = append(records, NewRecord(archive.JoinPath(path, e.Name), e.Size, modTime, added))
			}
			return nil
		}

		if IsMediaFile(path) {
			records = append(records, NewRecord(path, info.Size(), info.ModTime(), added))
		}
		return nil
	})

	return records, err
}

// GroupByExtension counts records per extension.
func GroupByExtension(records []ImageRecord) map[string]int {
	stats := make(map[string]int)
	for _, r := range records {
		stats[r.Extension]++
	}
	return stats
}

// PrintFileStats prints statistics about scanned files
func PrintFileStats(records []ImageRecord) {
	var totalSize int64
	for _, r := range records {
		totalSize += r.Size
	}

	stats := GroupByExtension(records)
	for _, ext := range []string{"jpg", "jpeg", "png", "webp", "gif", "mp4", "mov"} {
		if stats[ext] > 0 {
			fmt.Printf("  • %s: %d files\n", strings.ToUpper(ext), stats[ext])
		}
	}
	fmt.Printf("  • Total size: %s\n", humanize.IBytes(uint64(totalSize)))
}
