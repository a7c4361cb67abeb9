package calendar

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"photo-library-finder/internal/scanner"
)

func monthGroup(year int, month time.Month, photos int) MonthGroup {
	g := MonthGroup{
		ID:          MonthKey(year, month),
		Year:        year,
		Month:       int(month) - 1,
		DisplayName: fmt.Sprintf("%s %d", month, year),
	}
	for i := 0; i < photos; i++ {
		g.Photos = append(g.Photos, scanner.ImageRecord{ID: fmt.Sprintf("%s-%d", g.ID, i)})
	}
	return g
}

// testLayout: 4 photos per row, each row 110px, header 40, margin 20.
func testLayout() LayoutConfig {
	return LayoutConfig{
		ContainerWidth:   460,
		ThumbnailSize:    100,
		ThumbnailPadding: 10,
		HeaderHeight:     40,
		GroupMargin:      20,
	}
}

func testGroups() []MonthGroup {
	return []MonthGroup{
		monthGroup(2024, time.March, 9),    // 3 rows: 40+330+20 = 390
		monthGroup(2024, time.January, 4),  // 1 row: 170
		monthGroup(2023, time.November, 5), // 2 rows: 280
		{ID: UnknownDateID, DisplayName: UnknownDateName, Photos: []scanner.ImageRecord{{ID: "x"}}},
	}
}

func newTestEngine(t *testing.T) *LayoutEngine {
	t.Helper()
	e, err := NewLayoutEngine(testGroups(), testLayout())
	if err != nil {
		t.Fatalf("NewLayoutEngine failed: %v", err)
	}
	return e
}

func TestLayoutConfig_PhotosPerRow(t *testing.T) {
	tests := []struct {
		name string
		cfg  LayoutConfig
		want int
	}{
		{"fits four", testLayout(), 4},
		{"narrow container", LayoutConfig{ContainerWidth: 50, ThumbnailSize: 100, ThumbnailPadding: 10}, 1},
		{"zero width", LayoutConfig{ThumbnailSize: 100}, 1},
		{"defaults", DefaultLayoutConfig(), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.PhotosPerRow(); got != tt.want {
				t.Errorf("PhotosPerRow = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLayoutEngine_Offsets(t *testing.T) {
	e := newTestEngine(t)

	want := map[string]int{
		"2024-03":     0,
		"2024-01":     390,
		"2023-11":     560,
		UnknownDateID: 840,
	}
	for id, off := range want {
		if got := e.GetScrollPositionForMonth(id); got != off {
			t.Errorf("offset(%s) = %d, want %d", id, got, off)
		}
	}
	if got := e.GetTotalHeight(); got != 840+170 {
		t.Errorf("total height = %d, want %d", got, 1010)
	}
	if got := e.GetScrollPositionForMonth("1999-01"); got != 0 {
		t.Errorf("unknown month offset = %d, want 0", got)
	}
}

func TestLayoutEngine_Monotonic(t *testing.T) {
	groups := GroupPhotosByMonth(syntheticLibrary(3000))
	e, err := NewLayoutEngine(groups, DefaultLayoutConfig())
	if err != nil {
		t.Fatalf("NewLayoutEngine failed: %v", err)
	}

	layouts := e.Layouts()
	for i := 1; i < len(layouts); i++ {
		if layouts[i].Offset <= layouts[i-1].Offset {
			t.Fatalf("offset %d (%d) not greater than offset %d (%d)", i, layouts[i].Offset, i-1, layouts[i-1].Offset)
		}
		if e.GetScrollPositionForMonth(groups[i].ID) != layouts[i].Offset {
			t.Fatalf("scroll position mismatch for %s", groups[i].ID)
		}
	}
	last := layouts[len(layouts)-1]
	if e.GetTotalHeight() != last.Offset+last.Height {
		t.Errorf("total height %d != %d", e.GetTotalHeight(), last.Offset+last.Height)
	}
}

func TestLayoutEngine_ScrollPositionForDate(t *testing.T) {
	e := newTestEngine(t)

	if got := e.GetScrollPositionForDate(2024, 0); got != 390 {
		t.Errorf("January 2024 offset = %d, want 390", got)
	}
	if got := e.GetScrollPositionForDate(2024, 1); got != 0 {
		t.Errorf("missing month offset = %d, want 0", got)
	}
	if got := e.GetScrollPositionForDate(2024, 12); got != 0 {
		t.Errorf("out of range month offset = %d, want 0", got)
	}
}

func TestLayoutEngine_FindClosestMonthGroup(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"exact", day(2024, time.January, 15), "2024-01"},
		{"between, nearer march", day(2024, time.April, 1), "2024-03"},
		{"tie goes to display order", day(2024, time.February, 1), "2024-03"},
		{"before everything", day(2020, time.May, 1), "2023-11"},
		{"december", day(2023, time.December, 31), "2024-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, ok := e.FindClosestMonthGroup(tt.at)
			if !ok || g.ID != tt.want {
				t.Errorf("closest to %s = %q (%v), want %q", tt.at.Format("2006-01"), g.ID, ok, tt.want)
			}
		})
	}
}

func TestLayoutEngine_FindClosestMonthGroup_NoDatedGroups(t *testing.T) {
	e, _ := NewLayoutEngine([]MonthGroup{{ID: UnknownDateID}}, testLayout())
	if _, ok := e.FindClosestMonthGroup(time.Now()); ok {
		t.Error("expected no match without dated groups")
	}

	empty, _ := NewLayoutEngine(nil, testLayout())
	if _, ok := empty.FindClosestMonthGroup(time.Now()); ok {
		t.Error("expected no match for empty engine")
	}
}

func TestLayoutEngine_UpdateConfigRecomputes(t *testing.T) {
	e := newTestEngine(t)
	before := e.GetScrollPositionForMonth("2024-01")

	// Two photos per row: March needs 5 rows.
	width := 240
	if err := e.UpdateConfig(LayoutUpdate{ContainerWidth: &width}); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	after := e.GetScrollPositionForMonth("2024-01")
	if after == before {
		t.Fatal("expected offsets to change after config update")
	}
	if after != 40+5*110+20 {
		t.Errorf("January offset = %d, want %d", after, 40+5*110+20)
	}
	if cfg := e.Config(); cfg.ThumbnailSize != 100 || cfg.ContainerWidth != 240 {
		t.Errorf("partial update touched other fields: %+v", cfg)
	}
}

func TestLayoutEngine_UpdateConfigInvalid(t *testing.T) {
	e := newTestEngine(t)
	total := e.GetTotalHeight()

	zero := 0
	err := e.UpdateConfig(LayoutUpdate{ThumbnailSize: &zero})
	if !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
	if e.GetTotalHeight() != total {
		t.Error("invalid update must leave the layout unchanged")
	}
}

func TestLayoutEngine_SetMonthGroups(t *testing.T) {
	e := newTestEngine(t)
	e.SetMonthGroups([]MonthGroup{monthGroup(2025, time.May, 1)})

	if got := e.GetTotalHeight(); got != 170 {
		t.Errorf("total height = %d, want 170", got)
	}
	if got := e.GetScrollPositionForMonth("2024-03"); got != 0 {
		t.Errorf("stale group still indexed at %d", got)
	}
}

func TestLayoutEngine_GetMonthGroupAtScrollPosition(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		offset int
		want   string
	}{
		{-50, "2024-03"},
		{0, "2024-03"},
		{389, "2024-03"},
		{390, "2024-01"},
		{700, "2023-11"},
		{5000, UnknownDateID},
	}
	for _, tt := range tests {
		g, ok := e.GetMonthGroupAtScrollPosition(tt.offset)
		if !ok || g.ID != tt.want {
			t.Errorf("group at %d = %q, want %q", tt.offset, g.ID, tt.want)
		}
	}

	empty, _ := NewLayoutEngine(nil, testLayout())
	if _, ok := empty.GetMonthGroupAtScrollPosition(0); ok {
		t.Error("expected no group for empty engine")
	}
}

func TestLayoutEngine_GetVisibleRange(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		top, height int
		start, end  int
	}{
		{0, 100, 0, 1},
		{0, 391, 0, 2},
		{380, 200, 0, 3},
		{600, 1000, 2, 4},
		{2000, 100, 0, 0},
		{0, 0, 0, 0},
	}
	for _, tt := range tests {
		start, end := e.GetVisibleRange(tt.top, tt.height)
		if start != tt.start || end != tt.end {
			t.Errorf("GetVisibleRange(%d, %d) = [%d, %d), want [%d, %d)", tt.top, tt.height, start, end, tt.start, tt.end)
		}
	}
}

func TestNewLayoutEngine_InvalidConfig(t *testing.T) {
	if _, err := NewLayoutEngine(nil, LayoutConfig{}); !errors.Is(err, ErrInvalidLayout) {
		t.Errorf("expected ErrInvalidLayout, got %v", err)
	}
}
