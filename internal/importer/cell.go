package importer

import (
	"strconv"
	"strings"
	"time"
)

// CellKind tags the variant held by a Cell.
type CellKind int

const (
	// CellAbsent marks a trailing cell the file did not contain at all.
	CellAbsent CellKind = iota
	CellBlank
	CellString
	CellNumber
	CellBool
	CellDate
)

// Cell is one raw spreadsheet value before coercion. A number read from text
// input keeps its original spelling in Str.
type Cell struct {
	Kind CellKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

func StringCell(s string) Cell  { return Cell{Kind: CellString, Str: s} }
func NumberCell(n float64) Cell { return Cell{Kind: CellNumber, Num: n} }
func BoolCell(b bool) Cell      { return Cell{Kind: CellBool, Bool: b} }
func DateCell(t time.Time) Cell { return Cell{Kind: CellDate, Time: t} }
func BlankCell() Cell           { return Cell{Kind: CellBlank} }

// IsEmpty reports whether the cell carries no value: absent, blank, or a
// whitespace-only string.
func (c Cell) IsEmpty() bool {
	switch c.Kind {
	case CellAbsent, CellBlank:
		return true
	case CellString:
		return strings.TrimSpace(c.Str) == ""
	}
	return false
}

// Text renders the cell as trimmed text. Numbers read from text keep the
// written form ("10.50" stays "10.50"); native numbers print without
// exponent or a trailing ".0".
func (c Cell) Text() string {
	switch c.Kind {
	case CellString:
		return strings.TrimSpace(c.Str)
	case CellNumber:
		if s := strings.TrimSpace(c.Str); s != "" {
			return s
		}
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case CellBool:
		if c.Bool {
			return "true"
		}
		return "false"
	case CellDate:
		return c.Time.UTC().Format(dateLayout)
	}
	return ""
}

// MarshalJSON renders the cell the way a spreadsheet preview would show it.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CellAbsent, CellBlank:
		return []byte("null"), nil
	case CellNumber:
		if s := strings.TrimSpace(c.Str); s != "" {
			return []byte(s), nil
		}
		return []byte(strconv.FormatFloat(c.Num, 'f', -1, 64)), nil
	case CellBool:
		return []byte(strconv.FormatBool(c.Bool)), nil
	}
	return []byte(strconv.Quote(c.Text())), nil
}

// inferCell types a textual cell from CSV or legacy xls input: empty text
// is blank, numeric text is a number that remembers its text, everything
// else stays a string.
func inferCell(raw string) Cell {
	s := strings.TrimSpace(raw)
	if s == "" {
		return BlankCell()
	}
	if looksNumeric(s) {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return Cell{Kind: CellNumber, Num: n, Str: s}
		}
	}
	return StringCell(raw)
}

// looksNumeric accepts plain decimal notation only, so identifiers such as
// "0012" or "1e5" and phone numbers with a leading "+" are kept as text.
func looksNumeric(s string) bool {
	if s == "" || len(s) > 15 {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	if len(s) > 1 && s[0] == '0' && s[1] != '.' {
		return false
	}
	dot := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
		case s[i] == '.' && !dot && i > 0 && i < len(s)-1:
			dot = true
		default:
			return false
		}
	}
	return true
}

// ColumnCell pairs a header name with the cell found under it.
type ColumnCell struct {
	Column string `json:"column"`
	Cell   Cell   `json:"value"`
}

// RawRow is one data row in file order. Cells past the last value the file
// carried for this row are absent from the list.
type RawRow struct {
	// Index is the 0-based position of the row among the data rows of the
	// sheet, blank rows included.
	Index int          `json:"index"`
	Cells []ColumnCell `json:"cells"`
}

// RowNumber is the 1-based sheet row the data came from.
func (r RawRow) RowNumber() int { return r.Index + 2 }

// Get returns the cell under column, or an absent cell.
func (r RawRow) Get(column string) Cell {
	for _, cc := range r.Cells {
		if cc.Column == column {
			return cc.Cell
		}
	}
	return Cell{}
}

// IsBlank reports whether every cell in the row is empty.
func (r RawRow) IsBlank() bool {
	for _, cc := range r.Cells {
		if !cc.Cell.IsEmpty() {
			return false
		}
	}
	return true
}
