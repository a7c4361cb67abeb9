package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
	"github.com/spf13/afero"
)

// EntrySeparator joins an archive path and the entry name inside it,
// e.g. "/photos/trip.zip!/day1/IMG_0001.jpg".
const EntrySeparator = "!/"

var (
	ErrUnsupportedArchive = errors.New("unsupported archive format")
	ErrEntryNotFound      = errors.New("entry not found in archive")
)

// Entry describes an image stored inside an archive.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// IsArchive reports whether the path has an archive extension we can open.
func IsArchive(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".rar", ".7z":
		return true
	}
	return false
}

// JoinPath builds the virtual path of an archive entry.
func JoinPath(archivePath, entry string) string {
	return archivePath + EntrySeparator + entry
}

// SplitPath splits a virtual archive path back into its archive and entry parts.
func SplitPath(p string) (archivePath, entry string, ok bool) {
	idx := strings.Index(p, EntrySeparator)
	if idx <= 0 {
		return "", "", false
	}
	archivePath, entry = p[:idx], p[idx+len(EntrySeparator):]
	if !IsArchive(archivePath) || entry == "" {
		return "", "", false
	}
	return archivePath, entry, true
}

func isImageEntry(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// ListImages returns every image entry stored in the archive, in archive order.
func ListImages(fs afero.Fs, archivePath string) ([]Entry, error) {
	switch strings.ToLower(filepath.Ext(archivePath)) {
	case ".zip":
		return listZIP(fs, archivePath)
	case ".rar":
		return listRAR(fs, archivePath)
	case ".7z":
		return list7Z(fs, archivePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArchive, archivePath)
	}
}

// ReadEntry returns the contents of a single entry.
func ReadEntry(fs afero.Fs, archivePath, name string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(archivePath)) {
	case ".zip":
		return readZIP(fs, archivePath, name)
	case ".rar":
		return readRAR(fs, archivePath, name)
	case ".7z":
		return read7Z(fs, archivePath, name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArchive, archivePath)
	}
}

// openSized opens a file on fs and returns it with its size, as the zip and
// 7z readers need an io.ReaderAt plus length.
func openSized(fs afero.Fs, path string) (afero.File, int64, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func listZIP(fs afero.Fs, archivePath string) ([]Entry, error) {
	f, size, err := openSized(fs, archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := zip.NewReader(f, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP: %w", err)
	}

	var entries []Entry
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || !isImageEntry(file.Name) {
			continue
		}
		entries = append(entries, Entry{
			Name:    file.Name,
			Size:    int64(file.UncompressedSize64),
			ModTime: file.Modified,
		})
	}
	return entries, nil
}

func readZIP(fs afero.Fs, archivePath, name string) ([]byte, error) {
	f, size, err := openSized(fs, archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := zip.NewReader(f, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open file %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
}

func listRAR(fs afero.Fs, archivePath string) ([]Entry, error) {
	f, err := fs.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := rardecode.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open RAR: %w", err)
	}

	var entries []Entry
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read RAR header: %w", err)
		}
		if header.IsDir || !isImageEntry(header.Name) {
			continue
		}
		entries = append(entries, Entry{
			Name:    header.Name,
			Size:    header.UnPackedSize,
			ModTime: header.ModificationTime,
		})
	}
	return entries, nil
}

func readRAR(fs afero.Fs, archivePath, name string) ([]byte, error) {
	f, err := fs.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := rardecode.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open RAR: %w", err)
	}

	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read RAR header: %w", err)
		}
		if header.Name == name && !header.IsDir {
			return io.ReadAll(reader)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
}

func list7Z(fs afero.Fs, archivePath string) ([]Entry, error) {
	f, size, err := openSized(fs, archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := sevenzip.NewReader(f, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open 7Z: %w", err)
	}

	var entries []Entry
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || !isImageEntry(file.Name) {
			continue
		}
		entries = append(entries, Entry{
			Name:    file.Name,
			Size:    int64(file.UncompressedSize),
			ModTime: file.Modified,
		})
	}
	return entries, nil
}

func read7Z(fs afero.Fs, archivePath, name string) ([]byte, error) {
	f, size, err := openSized(fs, archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := sevenzip.NewReader(f, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open 7Z: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open file %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
}
