package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"askgive/internal"
)

var memberHeaders = []string{"id", "name", "company", "specialty", "chapter_role", "phone", "email", "gives", "asks"}

var matchHeaders = []string{"member", "give", "matching_ask", "score", "reason", "source"}

func ExportMembersToXLSX(members []internal.Member, outputPath string) error {
	return saveAs(outputPath, membersFile(members))
}

// WriteMembersXLSX streams the roster workbook to w.
func WriteMembersXLSX(w io.Writer, members []internal.Member) error {
	f := membersFile(members)
	defer f.Close()
	return f.Write(w)
}

func membersFile(members []internal.Member) *excelize.File {
	return buildSheet("Members", memberHeaders, len(members), func(i int, set func(col int, value any)) {
		m := members[i]
		set(1, m.ID)
		set(2, m.Name)
		set(3, m.Company)
		set(4, m.Specialty)
		set(5, m.ChapterRole)
		set(6, m.PhoneNumber)
		set(7, m.Email)
		set(8, strings.Join(m.Gives, "\n"))
		set(9, strings.Join(m.Asks, "\n"))
	})
}

func ExportMatchesToXLSX(matches []internal.SmartMatch, outputPath string) error {
	return saveAs(outputPath, buildSheet("Matches", matchHeaders, len(matches), func(i int, set func(col int, value any)) {
		m := matches[i]
		set(1, m.Member)
		set(2, m.Give)
		set(3, m.MatchingAsk)
		set(4, m.Score)
		set(5, m.Reason)
		set(6, string(m.Source))
	}))
}

func buildSheet(sheetName string, headers []string, n int, fill func(i int, set func(col int, value any))) *excelize.File {
	f := excelize.NewFile()
	_ = f.SetSheetName(f.GetSheetName(0), sheetName)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	for i := 0; i < n; i++ {
		r := i + 2
		fill(i, func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheetName, cell, value)
		})
	}
	return f
}

func saveAs(outputPath string, f *excelize.File) error {
	defer f.Close()
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
