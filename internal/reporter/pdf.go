package reporter

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/go-pdf/fpdf"
)

// ExportPDF writes a printable version of the report.
func ExportPDF(report Report, filename string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Photo Library Report", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Photo Library Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	lines := []string{
		fmt.Sprintf("Generated: %s", report.Timestamp),
		fmt.Sprintf("Files: %d (%s)", report.TotalFiles, humanize.IBytes(uint64(report.TotalSize))),
		fmt.Sprintf("Hashed: %d, from cache: %d, comparisons: %s",
			report.ProcessedFiles, report.CachedFiles, humanize.Comma(int64(report.TotalComparisons))),
		fmt.Sprintf("Duration: %.2fs", report.AnalysisDuration),
	}
	for _, l := range lines {
		pdf.CellFormat(0, 6, tr(l), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if len(report.VisualGroups) > 0 {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 8, "Visually similar groups", "", 1, "L", false, 0, "")

		for i, g := range report.VisualGroups {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.CellFormat(0, 7, fmt.Sprintf("Group %d - %.2f%% similar", i+1, g.Similarity), "", 1, "L", false, 0, "")

			pdf.SetFont("Helvetica", "", 8)
			for _, f := range g.Files {
				pdf.CellFormat(150, 5, tr(truncate(f.Path, 95)), "1", 0, "L", false, 0, "")
				pdf.CellFormat(30, 5, humanize.IBytes(uint64(f.Size)), "1", 1, "R", false, 0, "")
			}
			pdf.Ln(2)
		}
	}

	if len(report.Months) > 0 {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 8, "Calendar", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, m := range report.Months {
			pdf.CellFormat(60, 5, tr(m.DisplayName), "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 5, fmt.Sprintf("%d", m.Count), "1", 1, "R", false, 0, "")
		}
	}

	if err := pdf.OutputFileAndClose(filename); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

// truncate keeps the tail of long paths, which carries the file name.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n+3:])
}
