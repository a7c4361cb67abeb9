package reporter

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"photo-library-finder/internal/calendar"
	"photo-library-finder/internal/scanner"
	"photo-library-finder/internal/visual"

	"github.com/dustin/go-humanize"
)

// Report represents the analysis results
type Report struct {
	Status           string         `json:"status"`
	Phase            string         `json:"phase,omitempty"`
	Progress         float64        `json:"progress"`
	RunID            string         `json:"run_id,omitempty"`
	TotalFiles       int            `json:"total_files"`
	TotalSize        int64          `json:"total_size"`
	VisualGroups     []VisualGroup  `json:"visual_groups"`
	VisualCount      int            `json:"visual_count"`
	ProcessedFiles   int            `json:"processed_files"`
	CachedFiles      int            `json:"cached_files"`
	TotalComparisons int            `json:"total_comparisons"`
	Months           []MonthSummary `json:"months"`
	AnalysisDuration float64        `json:"analysis_duration_seconds"`
	Timestamp        string         `json:"timestamp"`
}

// VisualGroup represents visually similar files
type VisualGroup struct {
	Similarity float64    `json:"similarity"`
	Files      []FileInfo `json:"files"`
}

// FileInfo represents basic file information
type FileInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	Extension    string `json:"extension"`
	DateModified string `json:"date_modified"`
}

// MonthSummary is one calendar bucket without its photos.
type MonthSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Count       int    `json:"count"`
}

// NewReport builds a finished report for a scan and its calendar grouping.
func NewReport(files []scanner.ImageRecord, months []calendar.MonthGroup) Report {
	var totalSize int64
	for _, f := range files {
		totalSize += f.Size
	}
	return Report{
		Status:     "finished",
		TotalFiles: len(files),
		TotalSize:  totalSize,
		Months:     SummarizeMonths(months),
		Timestamp:  time.Now().Format(time.RFC3339),
	}
}

// ApplyVisual copies a visual analysis result into the report.
func (r *Report) ApplyVisual(result *visual.Result, files []scanner.ImageRecord) {
	if result == nil {
		return
	}
	r.RunID = result.RunID
	r.VisualGroups = BuildVisualGroups(result, files)
	r.VisualCount = len(r.VisualGroups)
	r.ProcessedFiles = result.ProcessedFiles
	r.CachedFiles = result.CachedFiles
	r.TotalComparisons = result.TotalComparisons
	r.AnalysisDuration += result.ProcessingTime.Seconds()
}

func NewFileInfo(r scanner.ImageRecord) FileInfo {
	return FileInfo{
		ID:           r.ID,
		Name:         r.Name,
		Path:         r.AbsolutePath,
		Size:         r.Size,
		Extension:    r.Extension,
		DateModified: r.DateModified.Format(time.RFC3339),
	}
}

// CalculateGroupHash identifies a group by its member paths, independent of order.
func CalculateGroupHash(files []FileInfo) string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (g VisualGroup) Hash() string {
	return CalculateGroupHash(g.Files)
}

// BuildVisualGroups resolves the file IDs in an analysis result.
func BuildVisualGroups(result *visual.Result, files []scanner.ImageRecord) []VisualGroup {
	if result == nil {
		return nil
	}

	byID := make(map[string]scanner.ImageRecord, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}

	groups := make([]VisualGroup, 0, len(result.Groups))
	for _, g := range result.Groups {
		vg := VisualGroup{Similarity: g.Similarity}
		for _, id := range g.Files {
			if r, ok := byID[id]; ok {
				vg.Files = append(vg.Files, NewFileInfo(r))
			}
		}
		groups = append(groups, vg)
	}
	return groups
}

// FilterIgnored drops groups the user marked as reviewed.
func FilterIgnored(groups []VisualGroup, isIgnored func(hash string) bool) []VisualGroup {
	if isIgnored == nil {
		return groups
	}
	var filtered []VisualGroup
	for _, g := range groups {
		if isIgnored(g.Hash()) {
			continue
		}
		filtered = append(filtered, g)
	}
	return filtered
}

// SummarizeMonths drops photo lists from calendar groups.
func SummarizeMonths(groups []calendar.MonthGroup) []MonthSummary {
	months := make([]MonthSummary, len(groups))
	for i, g := range groups {
		months[i] = MonthSummary{ID: g.ID, DisplayName: g.DisplayName, Count: len(g.Photos)}
	}
	return months
}

// ExportJSON exports the report to a JSON file
func ExportJSON(report Report, filename string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	err = os.WriteFile(filename, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// PrintSummary prints a summary of the analysis
func PrintSummary(report Report) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("📈 ANALYSIS SUMMARY")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("📦 Total files: %d (%s)\n", report.TotalFiles, humanize.IBytes(uint64(report.TotalSize)))
	if report.ProcessedFiles > 0 {
		fmt.Printf("🎨 Hashed files: %d (%d from cache)\n", report.ProcessedFiles, report.CachedFiles)
		fmt.Printf("🔁 Comparisons: %s\n", humanize.Comma(int64(report.TotalComparisons)))
		fmt.Printf("🖼️  Visual groups: %d\n", len(report.VisualGroups))
	}
	if len(report.Months) > 0 {
		fmt.Printf("📅 Months: %d\n", len(report.Months))
	}
	fmt.Printf("⏱️  Analysis duration: %.2fs\n", report.AnalysisDuration)
	fmt.Println()
}
