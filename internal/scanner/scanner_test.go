package scanner

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func setupTestFS(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()

	files := map[string]string{
		"/photos/a.jpg":           "aaaa",
		"/photos/b.PNG":           "bbbbbb",
		"/photos/clip.mp4":        "mp4",
		"/photos/notes.txt":       "text",
		"/photos/2024/c.jpeg":     "cc",
		"/photos/2024/deep/d.gif": "d",
	}
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return fs
}

func TestScanDirectory_Recursive(t *testing.T) {
	fs := setupTestFS(t)

	records, err := ScanDirectory(fs, "/photos", ScanOptions{Recursive: true})
	if err != nil {
		t.Fatalf("ScanDirectory failed: %v", err)
	}

	if len(records) != 5 {
		t.Fatalf("expected 5 media records, got %d", len(records))
	}

	seen := make(map[string]bool)
	for _, r := range records {
		if seen[r.ID] {
			t.Errorf("duplicate id %s", r.ID)
		}
		seen[r.ID] = true

		if r.Extension != strings.ToLower(r.Extension) {
			t.Errorf("extension %q not lowercase", r.Extension)
		}
		if !strings.HasPrefix(r.ThumbnailPath, r.AbsolutePath+"?v=") {
			t.Errorf("thumbnail path %q lacks version suffix", r.ThumbnailPath)
		}
		if r.DateModified.IsZero() || r.DateAdded.IsZero() {
			t.Errorf("record %s missing dates", r.Name)
		}
	}
}

func TestScanDirectory_DatesFromModTime(t *testing.T) {
	fs := afero.NewMemMapFs()
	mod := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	afero.WriteFile(fs, "/photos/a.jpg", []byte("jpg"), 0644)
	if err := fs.Chtimes("/photos/a.jpg", mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	records, err := ScanDirectory(fs, "/photos", ScanOptions{})
	if err != nil || len(records) != 1 {
		t.Fatalf("ScanDirectory = %v, %v", records, err)
	}
	r := records[0]
	if !r.DateCreated.IsZero() {
		t.Errorf("expected no creation date, got %v", r.DateCreated)
	}
	if !r.DateModified.Equal(mod) || r.DateAdded.IsZero() {
		t.Errorf("unexpected dates modified=%v added=%v", r.DateModified, r.DateAdded)
	}
}

func TestScanDirectory_NonRecursive(t *testing.T) {
	fs := setupTestFS(t)

	records, err := ScanDirectory(fs, "/photos", ScanOptions{Recursive: false})
	if err != nil {
		t.Fatalf("ScanDirectory failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 top-level records, got %d", len(records))
	}
}

func TestScanDirectory_Archives(t *testing.T) {
	fs := afero.NewMemMapFs()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range []string{"x.jpg", "y.png", "readme.txt"} {
		fw, _ := w.Create(name)
		fw.Write([]byte("data-" + name))
	}
	w.Close()
	afero.WriteFile(fs, "/lib/trip.zip", buf.Bytes(), 0644)

	records, err := ScanDirectory(fs, "/lib", ScanOptions{Recursive: true, IncludeArchives: true})
	if err != nil {
		t.Fatalf("ScanDirectory failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 archive image records, got %d", len(records))
	}
	for _, r := range records {
		if !strings.HasPrefix(r.AbsolutePath, "/lib/trip.zip!/") {
			t.Errorf("unexpected archive record path %q", r.AbsolutePath)
		}
	}

	without, err := ScanDirectory(fs, "/lib", ScanOptions{Recursive: true})
	if err != nil {
		t.Fatalf("ScanDirectory failed: %v", err)
	}
	if len(without) != 0 {
		t.Errorf("expected archives to be ignored, got %d records", len(without))
	}
}

func TestRecordIDStable(t *testing.T) {
	a := RecordID("/photos/a.jpg")
	b := RecordID("/photos/a.jpg")
	c := RecordID("/photos/b.jpg")
	if a != b {
		t.Error("expected identical ids for identical paths")
	}
	if a == c {
		t.Error("expected different ids for different paths")
	}
}

func TestNewRecord(t *testing.T) {
	mod := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := NewRecord("/p/IMG.JPG", 42, mod, mod)
	if r.Extension != "jpg" {
		t.Errorf("expected jpg, got %s", r.Extension)
	}
	if r.Name != "IMG.JPG" {
		t.Errorf("expected IMG.JPG, got %s", r.Name)
	}
	if r.Size != 42 {
		t.Errorf("expected size 42, got %d", r.Size)
	}
	if !r.DateCreated.IsZero() {
		t.Error("expected zero creation date")
	}
}
