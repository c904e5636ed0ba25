package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/spigell/cv-screener/internal/scoring"
)

const (
	SummarySheet  = "Summary"
	RankedSheet   = "Ranked Candidates"
	DetailedSheet = "Detailed Analysis"

	headerColor = "4472C4"
	xlsxExt     = ".xlsx"
)

// Report is the content of one exported workbook.
type Report struct {
	Requirement string
	RunID       string
	GeneratedAt time.Time
	Breakdowns  []*scoring.ScoreBreakdown
}

// band buckets an overall score for colouring and the summary counts.
type band struct {
	label string
	min   float64
	fill  string
}

var bands = []band{
	{label: "Excellent (85-100)", min: 85, fill: "C6EFCE"},
	{label: "Good (70-84)", min: 70, fill: "FFEB9C"},
	{label: "Fair (50-69)", min: 50, fill: "FFC7CE"},
	{label: "Poor (<50)", min: 0, fill: "FF9999"},
}

func bandOf(score float64) int {
	for i, b := range bands {
		if score >= b.min {
			return i
		}
	}
	return len(bands) - 1
}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// Workbook writes a ranked scorecard workbook and returns the final path.
// The .xlsx extension is appended when missing.
func Workbook(path string, report Report) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), xlsxExt) {
		path += xlsxExt
	}
	path = filepath.Clean(path)

	ranked := scoring.Rank(report.Breakdowns)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return "", err
	}
	for _, name := range []string{RankedSheet, DetailedSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return "", err
		}
	}

	w := &sheetWriter{f: f}
	writeSummary(w, report, ranked)
	writeRanked(w, ranked)
	writeDetailed(w, ranked)
	if w.err != nil {
		return "", fmt.Errorf("building workbook: %w", w.err)
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("saving workbook %q: %w", path, err)
	}
	return path, nil
}

// sheetWriter keeps the first error of a sequence of cell writes.
type sheetWriter struct {
	f   *excelize.File
	err error
}

func (w *sheetWriter) set(sheet string, col, row int, value any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellValue(sheet, cell, value)
}

func (w *sheetWriter) style(sheet string, fromCol, toCol, row, style int) {
	if w.err != nil {
		return
	}
	from, err := excelize.CoordinatesToCellName(fromCol, row)
	if err != nil {
		w.err = err
		return
	}
	to, err := excelize.CoordinatesToCellName(toCol, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellStyle(sheet, from, to, style)
}

func (w *sheetWriter) newStyle(s *excelize.Style) int {
	if w.err != nil {
		return 0
	}
	id, err := w.f.NewStyle(s)
	w.err = err
	return id
}

func (w *sheetWriter) widths(sheet string, widths ...float64) {
	for i, width := range widths {
		if w.err != nil {
			return
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			w.err = err
			return
		}
		w.err = w.f.SetColWidth(sheet, col, col, width)
	}
}

func (w *sheetWriter) header(sheet string, titles ...string) {
	style := w.newStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	for i, title := range titles {
		w.set(sheet, i+1, 1, title)
	}
	w.style(sheet, 1, len(titles), 1, style)
	if w.err != nil {
		return
	}
	w.err = w.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeSummary(w *sheetWriter, report Report, ranked []*scoring.ScoreBreakdown) {
	sheet := SummarySheet
	w.widths(sheet, 28, 50)

	label := w.newStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	row := 1
	add := func(name string, value any) {
		w.set(sheet, 1, row, name)
		w.set(sheet, 2, row, value)
		w.style(sheet, 1, 1, row, label)
		row++
	}

	add("Job requirement", report.Requirement)
	add("Run ID", report.RunID)
	add("Generated", report.GeneratedAt.UTC().Format(time.RFC3339))
	add("Candidates scored", len(ranked))

	passed, degraded := 0, 0
	counts := make([]int, len(bands))
	var total float64
	for _, b := range ranked {
		if b.PassedHardFilter {
			passed++
		}
		if b.Degraded() {
			degraded++
		}
		counts[bandOf(b.OverallScore)]++
		total += b.OverallScore
	}
	add("Passed hard filter", passed)
	add("Degraded confidence", degraded)
	row++

	for i, b := range bands {
		add(b.label, counts[i])
	}

	if len(ranked) == 0 {
		return
	}
	row++
	add("Average score", fmt.Sprintf("%.2f", total/float64(len(ranked))))
	add("Highest score", fmt.Sprintf("%.2f", ranked[0].OverallScore))
	add("Lowest score", fmt.Sprintf("%.2f", lowest(ranked)))
}

func lowest(ranked []*scoring.ScoreBreakdown) float64 {
	low := ranked[0].OverallScore
	for _, b := range ranked[1:] {
		if b.OverallScore < low {
			low = b.OverallScore
		}
	}
	return low
}

var rankedHeaders = []string{
	"Rank", "Candidate ID", "Name", "Overall", "AI Experience", "Engineering",
	"Semantic", "Education", "Skills", "Hard Filter", "Tier", "Tags", "Warnings",
}

func writeRanked(w *sheetWriter, ranked []*scoring.ScoreBreakdown) {
	sheet := RankedSheet
	w.widths(sheet, 8, 16, 24, 10, 14, 12, 10, 11, 8, 12, 16, 40, 40)
	w.header(sheet, rankedHeaders...)

	styles := make([]int, len(bands))
	for i, b := range bands {
		styles[i] = w.newStyle(&excelize.Style{
			Fill:   excelize.Fill{Type: "pattern", Color: []string{b.fill}, Pattern: 1},
			Border: thinBorder,
		})
	}

	for i, b := range ranked {
		row := i + 2
		filter := "passed"
		if !b.PassedHardFilter {
			filter = "failed"
		}
		values := []any{
			i + 1, b.CandidateID, b.CandidateName, b.OverallScore,
			b.SAI, b.SEng, b.SSemantic, b.SEdu, b.SSkill,
			filter, b.Experience.TierLabel,
			strings.Join(b.Tags, " "), strings.Join(b.Warnings, "; "),
		}
		for col, v := range values {
			w.set(sheet, col+1, row, v)
		}
		w.style(sheet, 1, len(values), row, styles[bandOf(b.OverallScore)])
	}

	if len(ranked) > 0 && w.err == nil {
		last, err := excelize.CoordinatesToCellName(len(rankedHeaders), len(ranked)+1)
		if err != nil {
			w.err = err
			return
		}
		w.err = w.f.AutoFilter(sheet, "A1:"+last, nil)
	}
}

func writeDetailed(w *sheetWriter, ranked []*scoring.ScoreBreakdown) {
	sheet := DetailedSheet
	w.widths(sheet, 8, 24, 22, 90)
	w.header(sheet, "Rank", "Candidate", "Category", "Details")

	wrap := w.newStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    thinBorder,
	})

	row := 2
	for i, b := range ranked {
		name := b.CandidateName
		if name == "" {
			name = b.CandidateID
		}
		sections := []struct {
			category string
			text     string
		}{
			{"Strengths", bullets(b.Strengths)},
			{"Gaps", bullets(b.Gaps)},
			{"Interview suggestions", bullets(b.InterviewSuggestions)},
			{"Analysis", b.AnalysisText},
		}
		for _, s := range sections {
			w.set(sheet, 1, row, i+1)
			w.set(sheet, 2, row, name)
			w.set(sheet, 3, row, s.category)
			w.set(sheet, 4, row, s.text)
			w.style(sheet, 1, 4, row, wrap)
			row++
		}
	}
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return "- " + strings.Join(items, "\n- ")
}
