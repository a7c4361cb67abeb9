package calendar

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"photo-library-finder/internal/observability"
	"photo-library-finder/internal/scanner"
)

const (
	UnknownDateID   = "unknown-date"
	UnknownDateName = "Unknown Date"

	// ChunkThreshold is the collection size at which grouping yields between chunks.
	ChunkThreshold = 10000
	ChunkSize      = 5000
)

var minGroupingDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// now is swapped in tests.
var now = time.Now

// MonthGroup holds the photos attributed to one calendar month.
type MonthGroup struct {
	ID          string                `json:"id"`
	Year        int                   `json:"year"`
	Month       int                   `json:"month"` // 0-11
	DisplayName string                `json:"display_name"`
	Photos      []scanner.ImageRecord `json:"photos"`
}

// IsUnknown reports whether g is the bucket for records without a date.
func (g MonthGroup) IsUnknown() bool {
	return g.ID == UnknownDateID
}

// GetGroupingDate returns the first set date of created, modified, added.
func GetGroupingDate(f scanner.ImageRecord) (time.Time, bool) {
	for _, d := range []time.Time{f.DateCreated, f.DateModified, f.DateAdded} {
		if !d.IsZero() {
			return d, true
		}
	}
	return time.Time{}, false
}

// GetSafeDateForGrouping is GetGroupingDate that also skips dates before 1900
// or more than a year in the future.
func GetSafeDateForGrouping(f scanner.ImageRecord) (time.Time, bool) {
	ceiling := now().AddDate(1, 0, 0)
	for _, d := range []time.Time{f.DateCreated, f.DateModified, f.DateAdded} {
		if d.IsZero() || d.Before(minGroupingDate) || d.After(ceiling) {
			continue
		}
		return d, true
	}
	return time.Time{}, false
}

// MonthKey formats the canonical "YYYY-MM" bucket id.
func MonthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

type datedRecord struct {
	date   time.Time
	record scanner.ImageRecord
}

type bucket struct {
	year    int
	month   time.Month
	entries []datedRecord
}

// bucketer accumulates records across one or more chunks.
type bucketer struct {
	buckets map[string]*bucket
	unknown []scanner.ImageRecord
}

func newBucketer() *bucketer {
	return &bucketer{buckets: make(map[string]*bucket)}
}

func (b *bucketer) add(files []scanner.ImageRecord) {
	for _, f := range files {
		d, ok := GetSafeDateForGrouping(f)
		if !ok {
			b.unknown = append(b.unknown, f)
			continue
		}

		key := MonthKey(d.Year(), d.Month())
		bk, exists := b.buckets[key]
		if !exists {
			bk = &bucket{year: d.Year(), month: d.Month()}
			b.buckets[key] = bk
		}
		bk.entries = append(bk.entries, datedRecord{date: d, record: f})
	}
}

// groups sorts photos ascending within each month and months newest first.
// The unknown-date bucket, if any, comes last.
func (b *bucketer) groups() []MonthGroup {
	groups := make([]MonthGroup, 0, len(b.buckets)+1)
	for key, bk := range b.buckets {
		sort.SliceStable(bk.entries, func(i, j int) bool {
			return bk.entries[i].date.Before(bk.entries[j].date)
		})

		photos := make([]scanner.ImageRecord, len(bk.entries))
		for i, e := range bk.entries {
			photos[i] = e.record
		}

		groups = append(groups, MonthGroup{
			ID:          key,
			Year:        bk.year,
			Month:       int(bk.month) - 1,
			DisplayName: fmt.Sprintf("%s %d", bk.month, bk.year),
			Photos:      photos,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Year != groups[j].Year {
			return groups[i].Year > groups[j].Year
		}
		return groups[i].Month > groups[j].Month
	})

	if len(b.unknown) > 0 {
		groups = append(groups, MonthGroup{
			ID:          UnknownDateID,
			DisplayName: UnknownDateName,
			Photos:      b.unknown,
		})
	}
	return groups
}

// GroupPhotosByMonth buckets files by the month of their safe grouping date.
func GroupPhotosByMonth(files []scanner.ImageRecord) []MonthGroup {
	start := time.Now()
	b := newBucketer()
	b.add(files)
	groups := b.groups()
	observability.MonthGroupingDuration.WithLabelValues("sync").Observe(time.Since(start).Seconds())
	return groups
}

// GroupPhotosChunked produces the same groups as GroupPhotosByMonth. Inputs of
// ChunkThreshold or more records are processed ChunkSize at a time, yielding
// the processor and checking ctx between chunks.
func GroupPhotosChunked(ctx context.Context, files []scanner.ImageRecord) ([]MonthGroup, error) {
	if len(files) < ChunkThreshold {
		return GroupPhotosByMonth(files), nil
	}

	start := time.Now()
	b := newBucketer()
	for offset := 0; offset < len(files); offset += ChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.add(files[offset:min(offset+ChunkSize, len(files))])
		runtime.Gosched()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups := b.groups()
	observability.MonthGroupingDuration.WithLabelValues("chunked").Observe(time.Since(start).Seconds())
	return groups, nil
}

// CountPhotos sums photos across groups.
func CountPhotos(groups []MonthGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Photos)
	}
	return n
}
