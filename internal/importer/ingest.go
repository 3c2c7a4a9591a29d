package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

// Format is a supported spreadsheet container.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

var extFormats = map[string]Format{
	".csv":  FormatCSV,
	".xlsx": FormatXLSX,
	".xls":  FormatXLS,
}

var mimeFormats = map[string]Format{
	"text/csv":                    FormatCSV,
	"application/csv":             FormatCSV,
	"text/comma-separated-values": FormatCSV,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": FormatXLSX,
	"application/vnd.ms-excel": FormatXLS,
}

// sheetData is the raw cell grid of a first sheet, header row included.
type sheetData struct {
	rows     [][]Cell
	encoding string
	warnings []string
}

type gridParser func(data []byte) (*sheetData, error)

var parsers = map[Format]gridParser{
	FormatCSV:  parseCSV,
	FormatXLSX: parseXLSX,
	FormatXLS:  parseXLS,
}

// ParsedFile is the first sheet of an uploaded file.
type ParsedFile struct {
	Name     string   `json:"name"`
	Format   Format   `json:"format"`
	Encoding string   `json:"encoding,omitempty"`
	Columns  []string `json:"columns"`
	Rows     []RawRow `json:"-"`
	// Warnings are non-fatal parse problems such as malformed CSV lines.
	Warnings []string `json:"warnings,omitempty"`
}

// DetectFormat accepts a file when either its extension or its MIME type is
// supported. An empty or generic declared type is replaced by the type
// sniffed from content.
func DetectFormat(name, contentType string, data []byte) (Format, error) {
	declared := mediaType(contentType)
	if declared == "" || declared == "application/octet-stream" {
		declared = mediaType(mimetype.Detect(data).String())
	}
	if f, ok := extFormats[strings.ToLower(filepath.Ext(name))]; ok {
		return f, nil
	}
	if f, ok := mimeFormats[declared]; ok {
		// Browsers on Windows label CSV files as Excel.
		if f == FormatXLS && isText(data) {
			return FormatCSV, nil
		}
		return f, nil
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFile, name, declared)
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func isText(data []byte) bool {
	m := mimetype.Detect(data)
	return m.Is("text/csv") || m.Is("text/plain")
}

// Parse reads the first sheet of a file into a header and raw rows.
// maxBytes <= 0 disables the size check.
func Parse(name, contentType string, data []byte, maxBytes int64) (*ParsedFile, error) {
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(data), maxBytes)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	format, err := DetectFormat(name, contentType, data)
	if err != nil {
		return nil, err
	}
	parse, ok := parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParserUnavailable, format)
	}
	sd, err := parse(data)
	if err != nil {
		return nil, err
	}
	pf, err := buildParsed(sd.rows)
	if err != nil {
		return nil, err
	}
	pf.Name = name
	pf.Format = format
	pf.Encoding = sd.encoding
	pf.Warnings = append(sd.warnings, pf.Warnings...)
	return pf, nil
}

// buildParsed turns a cell grid into named columns and non-blank rows.
func buildParsed(grid [][]Cell) (*ParsedFile, error) {
	if len(grid) == 0 {
		return nil, ErrEmptyHeader
	}
	columns := headerNames(grid[0])
	if len(columns) == 0 {
		return nil, ErrEmptyHeader
	}

	pf := &ParsedFile{Columns: columns, Rows: []RawRow{}}
	for i, cells := range grid[1:] {
		row := RawRow{Index: i, Cells: make([]ColumnCell, 0, len(cells))}
		for j, c := range cells {
			if j >= len(columns) {
				if !c.IsEmpty() {
					pf.Warnings = append(pf.Warnings, fmt.Sprintf("row %d: values beyond the last header column were ignored", row.RowNumber()))
				}
				break
			}
			row.Cells = append(row.Cells, ColumnCell{Column: columns[j], Cell: c})
		}
		if row.IsBlank() {
			continue
		}
		pf.Rows = append(pf.Rows, row)
	}
	return pf, nil
}

// headerNames renders the header row as trimmed strings. Trailing blank
// headers are dropped, blanks in between get the column letter, and repeated
// names are suffixed so every column stays addressable.
func headerNames(header []Cell) []string {
	last := -1
	for i, c := range header {
		if !c.IsEmpty() {
			last = i
		}
	}
	if last < 0 {
		return nil
	}
	names := make([]string, 0, last+1)
	seen := make(map[string]int, last+1)
	for i := 0; i <= last; i++ {
		name := header[i].Text()
		if name == "" {
			letter, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				letter = strconv.Itoa(i + 1)
			}
			name = "Column " + letter
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		} else {
			seen[name] = 1
		}
		names = append(names, name)
	}
	return names
}

// =============================================================================
// CSV
// =============================================================================

func parseCSV(data []byte) (*sheetData, error) {
	decoded, encoding, err := decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSheet, err)
	}
	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = sniffDelimiter(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	sd := &sheetData{encoding: encoding}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(sd.rows) == 0 {
				return nil, fmt.Errorf("%w: header row: %v", ErrUnreadableSheet, err)
			}
			sd.warnings = append(sd.warnings, fmt.Sprintf("row %d skipped: %v", len(sd.rows)+1, err))
			// keep the slot so row numbers stay aligned with the file
			sd.rows = append(sd.rows, nil)
			continue
		}
		cells := make([]Cell, len(record))
		for i, v := range record {
			cells[i] = inferCell(v)
		}
		sd.rows = append(sd.rows, cells)
	}
	return sd, nil
}

// =============================================================================
// XLSX
// =============================================================================

func parseXLSX(data []byte) (*sheetData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSheet, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	sheet := sheets[0]
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSheet, err)
	}

	styles := &dateStyles{f: f, sheet: sheet, cache: make(map[int]bool)}
	grid := make([][]Cell, len(rows))
	for r, row := range rows {
		cells := make([]Cell, len(row))
		for c, raw := range row {
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				cells[c] = inferCell(raw)
				continue
			}
			cells[c] = xlsxCell(f, sheet, axis, raw, styles)
		}
		grid[r] = cells
	}
	return &sheetData{rows: grid}, nil
}

func xlsxCell(f *excelize.File, sheet, axis, raw string, styles *dateStyles) Cell {
	if strings.TrimSpace(raw) == "" {
		return BlankCell()
	}
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return inferCell(raw)
	}
	switch typ {
	case excelize.CellTypeBool:
		return BoolCell(raw == "1" || strings.EqualFold(raw, "true"))
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeError:
		return StringCell(raw)
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return DateCell(t)
		}
		return StringCell(raw)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return StringCell(raw)
	}
	if styles.isDate(axis) {
		if d, ok := serialToDate(n); ok {
			t, _ := time.Parse(dateLayout, d)
			return DateCell(t)
		}
	}
	return NumberCell(n)
}

// dateStyles remembers which cell styles carry a date number format.
type dateStyles struct {
	f     *excelize.File
	sheet string
	cache map[int]bool
}

func (d *dateStyles) isDate(axis string) bool {
	idx, err := d.f.GetCellStyle(d.sheet, axis)
	if err != nil || idx == 0 {
		return false
	}
	if v, ok := d.cache[idx]; ok {
		return v
	}
	v := false
	if st, err := d.f.GetStyle(idx); err == nil && st != nil {
		v = isDateStyle(st)
	}
	d.cache[idx] = v
	return v
}

func isDateStyle(st *excelize.Style) bool {
	if st.CustomNumFmt != nil {
		return isDateFormatCode(*st.CustomNumFmt)
	}
	switch {
	case st.NumFmt >= 14 && st.NumFmt <= 17, st.NumFmt == 22:
		return true
	case st.NumFmt >= 27 && st.NumFmt <= 36, st.NumFmt >= 50 && st.NumFmt <= 58:
		return true
	}
	return false
}

// isDateFormatCode looks for day or year tokens outside literals and
// bracketed sections such as colors and locales.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	inQuote, inBracket, escaped := false, false, false
	for _, r := range code {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	return strings.ContainsAny(strings.ToLower(b.String()), "dy")
}

// =============================================================================
// XLS (BIFF8)
// =============================================================================

func parseXLS(data []byte) (sd *sheetData, err error) {
	// the BIFF reader panics on some malformed workbooks
	defer func() {
		if r := recover(); r != nil {
			sd, err = nil, fmt.Errorf("%w: %v", ErrUnreadableSheet, r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSheet, err)
	}
	if wb.NumSheets() == 0 {
		return nil, ErrEmptyWorkbook
	}
	ws := wb.GetSheet(0)
	if ws == nil {
		return nil, ErrUnreadableSheet
	}

	var grid [][]Cell

	for i := 0; i <= int(ws.MaxRow); i++ {
		row := ws.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]Cell, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, inferCell(row.Col(c)))
		}
		grid = append(grid, trimTrailingBlank(cells))
	}
	return &sheetData{rows: grid}, nil
}

func trimTrailingBlank(cells []Cell) []Cell {
	n := len(cells)
	for n > 0 && cells[n-1].IsEmpty() {
		n--
	}
	return cells[:n]
}
