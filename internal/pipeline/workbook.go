package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"askgive/internal"
)

var (
	ErrUnsupportedInput = errors.New("unsupported input type")
	ErrUnreadableInput  = errors.New("unreadable input")
)

type InputKind string

const (
	KindXLSX InputKind = "xlsx"
	KindCSV  InputKind = "csv"
	KindHTML InputKind = "html"
	KindPDF  InputKind = "pdf"
)

// KindFromName maps a file name or explicit type hint to an input kind.
func KindFromName(name string) (InputKind, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	ext := strings.TrimPrefix(filepath.Ext(lower), ".")
	if ext == "" {
		ext = lower
	}
	switch ext {
	case "xlsx", "xlsm":
		return KindXLSX, nil
	case "csv":
		return KindCSV, nil
	case "html", "htm":
		return KindHTML, nil
	case "pdf":
		return KindPDF, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedInput, name)
	}
}

// ReadWorkbook parses spreadsheet content of the given kind. PDF input has no
// grid and is rejected; use ExtractPDFText for it.
func ReadWorkbook(kind InputKind, content []byte, name string) (*internal.Workbook, error) {
	switch kind {
	case KindXLSX:
		return ReadXLSX(content)
	case KindCSV:
		sheetName := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		return ReadCSV(content, sheetName)
	case KindHTML:
		return ReadHTML(content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, kind)
	}
}

func ReadWorkbookFile(path string) (*internal.Workbook, error) {
	kind, err := KindFromName(path)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadWorkbook(kind, blob, path)
}

// ReadXLSX returns every sheet in workbook order with typed cells: text as
// string, numbers as float64, booleans as bool, empty cells as nil.
func ReadXLSX(content []byte) (*internal.Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wb := &internal.Workbook{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			continue
		}
		grid := make([][]any, 0, len(rows))
		for r, row := range rows {
			cells := make([]any, len(row))
			for c, raw := range row {
				if raw == "" {
					continue
				}
				cellName, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					cells[c] = raw
					continue
				}
				cellType, err := f.GetCellType(sheet, cellName)
				if err != nil {
					cells[c] = raw
					continue
				}
				cells[c] = typedXLSXValue(cellType, raw)
			}
			grid = append(grid, cells)
		}
		wb.Sheets = append(wb.Sheets, internal.Sheet{Name: sheet, Rows: grid})
	}
	return wb, nil
}

func typedXLSXValue(cellType excelize.CellType, raw string) any {
	switch cellType {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n
		}
		return raw
	case excelize.CellTypeError:
		return nil
	default:
		return raw
	}
}

// ReadCSV turns one CSV document into a single sheet. Values are inferred the
// way a spreadsheet import does: numbers, TRUE/FALSE, text.
func ReadCSV(content []byte, sheetName string) (*internal.Workbook, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	grid := [][]any{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		cells := make([]any, len(record))
		for i, v := range record {
			cells[i] = inferValue(v)
		}
		grid = append(grid, cells)
	}

	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Sheet1"
	}
	return &internal.Workbook{Sheets: []internal.Sheet{{Name: sheetName, Rows: grid}}}, nil
}

// ReadHTML reads the tables of an HTML document, typically a Google Sheet
// "Publish to web" page, as sheets.
func ReadHTML(content []byte) (*internal.Workbook, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	menuNames := []string{}
	doc.Find("#sheet-menu li").Each(func(_ int, li *goquery.Selection) {
		menuNames = append(menuNames, normalizeSpaces(li.Text()))
	})

	wb := &internal.Workbook{}
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		waffle := table.HasClass("waffle")
		grid := [][]any{}
		rows := table.Find("tr")
		if waffle {
			rows = table.Find("tbody tr")
		}
		rows.Each(func(_ int, tr *goquery.Selection) {
			cellSel := "th,td"
			if waffle {
				cellSel = "td"
			}
			cells := []any{}
			tr.Find(cellSel).Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, inferValue(normalizeSpaces(cell.Text())))
			})
			grid = append(grid, cells)
		})

		name := fmt.Sprintf("Sheet%d", i+1)
		if i < len(menuNames) && menuNames[i] != "" {
			name = menuNames[i]
		}
		wb.Sheets = append(wb.Sheets, internal.Sheet{Name: name, Rows: grid})
	})
	return wb, nil
}

// ExtractPDFText returns the plain text of every page, one line per row.
func ExtractPDFText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range splitLines(text) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// WorkbookText serializes normalized members as JSON, the raw text handed to
// the AI cleaner for uploaded spreadsheets.
func WorkbookText(members []internal.Member) (string, error) {
	blob, err := json.Marshal(members)
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

// GridText flattens a workbook into CSV-like text for AI cleaning.
func GridText(wb *internal.Workbook) string {
	var b strings.Builder
	for _, sheet := range wb.Sheets {
		b.WriteString("# ")
		b.WriteString(sheet.Name)
		b.WriteByte('\n')
		for _, row := range sheet.Rows {
			parts := make([]string, len(row))
			for i, cell := range row {
				parts[i] = cellText(cell)
			}
			b.WriteString(strings.Join(parts, ","))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func inferValue(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if strings.EqualFold(s, "true") {
		return true
	}
	if strings.EqualFold(s, "false") {
		return false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "xXnN") {
		return n
	}
	return raw
}

func cellText(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(v)
	}
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeSpaces(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
