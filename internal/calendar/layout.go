package calendar

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// LayoutConfig holds pixel dimensions of the calendar grid.
type LayoutConfig struct {
	ContainerWidth   int `json:"container_width" yaml:"container_width"`
	ThumbnailSize    int `json:"thumbnail_size" yaml:"thumbnail_size"`
	ThumbnailPadding int `json:"thumbnail_padding" yaml:"thumbnail_padding"`
	HeaderHeight     int `json:"header_height" yaml:"header_height"`
	GroupMargin      int `json:"group_margin" yaml:"group_margin"`
}

// DefaultLayoutConfig returns the dimensions used when none are configured.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		ContainerWidth:   1200,
		ThumbnailSize:    160,
		ThumbnailPadding: 8,
		HeaderHeight:     48,
		GroupMargin:      24,
	}
}

var ErrInvalidLayout = errors.New("invalid layout config")

// Validate rejects configurations that cannot produce a grid.
func (c LayoutConfig) Validate() error {
	switch {
	case c.ThumbnailSize <= 0:
		return fmt.Errorf("%w: thumbnail size %d", ErrInvalidLayout, c.ThumbnailSize)
	case c.ContainerWidth < 0, c.ThumbnailPadding < 0, c.HeaderHeight < 0, c.GroupMargin < 0:
		return fmt.Errorf("%w: negative dimension", ErrInvalidLayout)
	}
	return nil
}

// LayoutUpdate changes only the fields that are set.
type LayoutUpdate struct {
	ContainerWidth   *int `json:"container_width,omitempty"`
	ThumbnailSize    *int `json:"thumbnail_size,omitempty"`
	ThumbnailPadding *int `json:"thumbnail_padding,omitempty"`
	HeaderHeight     *int `json:"header_height,omitempty"`
	GroupMargin      *int `json:"group_margin,omitempty"`
}

func (u LayoutUpdate) apply(c LayoutConfig) LayoutConfig {
	if u.ContainerWidth != nil {
		c.ContainerWidth = *u.ContainerWidth
	}
	if u.ThumbnailSize != nil {
		c.ThumbnailSize = *u.ThumbnailSize
	}
	if u.ThumbnailPadding != nil {
		c.ThumbnailPadding = *u.ThumbnailPadding
	}
	if u.HeaderHeight != nil {
		c.HeaderHeight = *u.HeaderHeight
	}
	if u.GroupMargin != nil {
		c.GroupMargin = *u.GroupMargin
	}
	return c
}

// PhotosPerRow is how many thumbnails fit across the container, at least one.
func (c LayoutConfig) PhotosPerRow() int {
	cell := c.ThumbnailSize + c.ThumbnailPadding
	if cell <= 0 {
		return 1
	}
	return max(1, (c.ContainerWidth-2*c.ThumbnailPadding)/cell)
}

// GroupHeight is the pixel height of a month holding count photos.
func (c LayoutConfig) GroupHeight(count int) int {
	perRow := c.PhotosPerRow()
	rows := (count + perRow - 1) / perRow
	return c.HeaderHeight + rows*(c.ThumbnailSize+c.ThumbnailPadding) + c.GroupMargin
}

// MonthLayout is the geometry of one month group.
type MonthLayout struct {
	GroupID      string `json:"group_id"`
	Offset       int    `json:"offset"`
	Height       int    `json:"height"`
	Rows         int    `json:"rows"`
	PhotosPerRow int    `json:"photos_per_row"`
}

// LayoutEngine maps month groups to vertical scroll offsets. Offsets are
// recomputed whenever the groups or the configuration change.
type LayoutEngine struct {
	mu      sync.RWMutex
	config  LayoutConfig
	groups  []MonthGroup
	layouts []MonthLayout
	index   map[string]int
	total   int
}

// NewLayoutEngine lays out groups (newest first) with cfg.
func NewLayoutEngine(groups []MonthGroup, cfg LayoutConfig) (*LayoutEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &LayoutEngine{config: cfg}
	e.groups = groups
	e.recompute()
	return e, nil
}

// recompute must be called with the write lock held.
func (e *LayoutEngine) recompute() {
	perRow := e.config.PhotosPerRow()
	e.layouts = make([]MonthLayout, len(e.groups))
	e.index = make(map[string]int, len(e.groups))

	offset := 0
	for i, g := range e.groups {
		h := e.config.GroupHeight(len(g.Photos))
		e.layouts[i] = MonthLayout{
			GroupID:      g.ID,
			Offset:       offset,
			Height:       h,
			Rows:         (len(g.Photos) + perRow - 1) / perRow,
			PhotosPerRow: perRow,
		}
		e.index[g.ID] = i
		offset += h
	}
	e.total = offset
}

// SetMonthGroups replaces the groups and recomputes offsets.
func (e *LayoutEngine) SetMonthGroups(groups []MonthGroup) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.groups = groups
	e.recompute()
}

// UpdateConfig applies a partial update and recomputes offsets before
// returning. An invalid result leaves the engine unchanged.
func (e *LayoutEngine) UpdateConfig(u LayoutUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := u.apply(e.config)
	if err := next.Validate(); err != nil {
		return err
	}
	e.config = next
	e.recompute()
	return nil
}

func (e *LayoutEngine) Config() LayoutConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// Layouts returns a copy of the per-month geometry in display order.
func (e *LayoutEngine) Layouts() []MonthLayout {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]MonthLayout(nil), e.layouts...)
}

// GetScrollPositionForMonth returns the offset of group id, or 0 if unknown.
func (e *LayoutEngine) GetScrollPositionForMonth(id string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i, ok := e.index[id]; ok {
		return e.layouts[i].Offset
	}
	return 0
}

// GetScrollPositionForDate returns the offset of the group for year and
// month (0-11), or 0 if there is none.
func (e *LayoutEngine) GetScrollPositionForDate(year, month int) int {
	if month < 0 || month > 11 {
		return 0
	}
	return e.GetScrollPositionForMonth(MonthKey(year, time.Month(month+1)))
}

// FindClosestMonthGroup returns the dated group nearest to t by month count.
// Ties go to the group that comes first in display order.
func (e *LayoutEngine) FindClosestMonthGroup(t time.Time) (MonthGroup, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	target := t.Year()*12 + int(t.Month()) - 1
	best := -1
	bestDist := 0
	for i, g := range e.groups {
		if g.IsUnknown() {
			continue
		}
		d := g.Year*12 + g.Month - target
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
		if d == 0 {
			break
		}
	}
	if best < 0 {
		return MonthGroup{}, false
	}
	return e.groups[best], true
}

// GetTotalHeight is the sum of all group heights.
func (e *LayoutEngine) GetTotalHeight() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.total
}

// GetMonthGroupAtScrollPosition returns the group whose span contains offset.
// Offsets past the end resolve to the last group.
func (e *LayoutEngine) GetMonthGroupAtScrollPosition(offset int) (MonthGroup, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.layouts) == 0 {
		return MonthGroup{}, false
	}
	i := e.indexAt(offset)
	return e.groups[i], true
}

// indexAt must be called with the lock held and at least one layout.
func (e *LayoutEngine) indexAt(offset int) int {
	// first group starting after offset, minus one
	i := sort.Search(len(e.layouts), func(i int) bool {
		return e.layouts[i].Offset > offset
	}) - 1
	return max(0, i)
}

// GetVisibleRange returns the half-open index range [start, end) of groups
// that intersect the viewport.
func (e *LayoutEngine) GetVisibleRange(scrollTop, viewportHeight int) (start, end int) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.layouts) == 0 || viewportHeight <= 0 || scrollTop >= e.total {
		return 0, 0
	}
	scrollTop = max(0, scrollTop)
	start = e.indexAt(scrollTop)
	bottom := scrollTop + viewportHeight
	end = sort.Search(len(e.layouts), func(i int) bool {
		return e.layouts[i].Offset >= bottom
	})
	return start, end
}
