package importer

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/eep-importer/internal/domain"
)

const dateLayout = "2006-01-02"

// spreadsheetEpoch is day zero of the 1900 date system as used by Excel and
// Lotus 1-2-3 compatible files.
var spreadsheetEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// maxSerial is 9999-12-31 in the 1900 date system.
const maxSerial = 2958465

// dateLayouts are tried in order against free-text dates. Month-first
// slashed dates win over day-first ones; day-first only applies when the
// month-first reading is impossible.
var dateLayouts = []string{
	dateLayout,
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"2006.01.02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006",
	"2/1/2006",
	"1-2-2006",
	"2-1-2006",
	"2.1.2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"2-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"Mon, 2 Jan 2006",
	"Mon Jan 2 2006",
}

// NormalizeDate parses a date cell and returns its canonical YYYY-MM-DD form.
// Text carrying an explicit offset keeps the calendar date as written. It
// accepts native dates, spreadsheet serials (as numbers or numeric
// strings) and free text in the layouts above. ok is false for empty or
// unparseable input.
func NormalizeDate(c Cell) (string, bool) {
	switch c.Kind {
	case CellDate:
		if c.Time.IsZero() {
			return "", false
		}
		return c.Time.UTC().Format(dateLayout), true
	case CellNumber:
		return serialToDate(c.Num)
	case CellString:
		return NormalizeDateString(c.Str)
	}
	return "", false
}

// NormalizeDateString is NormalizeDate for text input.
func NormalizeDateString(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if looksNumeric(s) {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return serialToDate(n)
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(dateLayout), true
		}
	}
	return "", false
}

func serialToDate(n float64) (string, bool) {
	if math.IsNaN(n) || n < 1 || n > maxSerial {
		return "", false
	}
	days := int(math.Floor(n))
	return spreadsheetEpoch.AddDate(0, 0, days).Format(dateLayout), true
}

// ParseBool is total: "true", "yes" and "1" in any case are true, anything
// else is false. Native booleans pass through and numbers are true only
// when equal to 1.
func ParseBool(c Cell) bool {
	switch c.Kind {
	case CellBool:
		return c.Bool
	case CellNumber:
		return c.Num == 1
	case CellString:
		return ParseBoolString(c.Str)
	}
	return false
}

// ParseBoolString is ParseBool for text input.
func ParseBoolString(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "1":
		return true
	}
	return false
}

// NormalizeCell coerces a raw cell into the value stored for field kind:
// nil for empty cells and invalid dates, a canonical date string, a bool,
// or trimmed text.
func NormalizeCell(kind domain.FieldKind, c Cell) any {
	if c.IsEmpty() {
		return nil
	}
	switch kind {
	case domain.KindDate:
		if d, ok := NormalizeDate(c); ok {
			return d
		}
		return nil
	case domain.KindBool:
		return ParseBool(c)
	}
	return c.Text()
}

// normalizeValue brings a stored value (from a mapped row or a backend
// record) into comparable form for kind. Dates compare canonical strings,
// booleans compare truthiness, text compares trimmed strings.
func normalizeValue(kind domain.FieldKind, v any) any {
	switch kind {
	case domain.KindDate:
		s := textOf(v)
		if d, ok := NormalizeDateString(s); ok {
			return d
		}
		return s
	case domain.KindBool:
		return truthy(v)
	}
	return textOf(v)
}

func textOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case *string:
		if x == nil {
			return ""
		}
		return strings.TrimSpace(*x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return ""
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case *bool:
		return x != nil && *x
	case string:
		return ParseBoolString(x)
	case float64:
		return x == 1
	case int:
		return x == 1
	}
	return false
}
