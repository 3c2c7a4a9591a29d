package importer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/eep-importer/internal/domain"
)

// Ignore is the mapping target for columns that are not imported.
const Ignore domain.Field = "ignore"

// FieldMapping maps a file column name to a student field or Ignore.
// Columns missing from the map are ignored.
type FieldMapping map[string]domain.Field

// NormalizeColumn lowercases a header and strips spaces, underscores and
// hyphens so "Date_of Birth" and "date-of-birth" compare equal.
func NormalizeColumn(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case ' ', '\t', '_', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AutoMatch picks the target field for an already-normalized column name.
// It makes three passes over candidates, each in order: an exact key, a key
// contained in the column, then (for columns of two or more characters) the
// column contained in a key. The first hit of the earliest pass wins.
func AutoMatch(column string, candidates []domain.FieldSpec) (domain.Field, bool) {
	if column == "" {
		return "", false
	}
	passes := []func(key string) bool{
		func(key string) bool { return key == column },
		func(key string) bool { return strings.Contains(column, key) },
		func(key string) bool { return len(column) >= 2 && strings.Contains(key, column) },
	}
	for _, match := range passes {
		for _, spec := range candidates {
			for _, key := range spec.Keys {
				if match(key) {
					return spec.Name, true
				}
			}
		}
	}
	return "", false
}

// SuggestMapping auto-matches every column against the student field list.
func SuggestMapping(columns []string) FieldMapping {
	m := make(FieldMapping, len(columns))
	for _, col := range columns {
		if f, ok := AutoMatch(NormalizeColumn(col), domain.StudentFields); ok {
			m[col] = f
		} else {
			m[col] = Ignore
		}
	}
	return m
}

// Target returns the field a column maps to, or Ignore.
func (m FieldMapping) Target(column string) domain.Field {
	if f, ok := m[column]; ok && f != "" {
		return f
	}
	return Ignore
}

// Apply overlays operator overrides onto a copy of m. Every column must be
// one of columns and every field must be Ignore or a known student field.
func (m FieldMapping) Apply(columns []string, overrides map[string]domain.Field) (FieldMapping, error) {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	out := make(FieldMapping, len(m)+len(overrides))
	for k, v := range m {
		out[k] = v
	}
	for col, f := range overrides {
		if !known[col] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, col)
		}
		if f == "" {
			f = Ignore
		}
		if f != Ignore {
			if _, ok := domain.LookupField(f); !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
			}
		}
		out[col] = f
	}
	return out, nil
}

// MapsIdentifier reports whether some column feeds the identifier field.
func (m FieldMapping) MapsIdentifier() bool {
	for _, f := range m {
		if f == domain.IdentifierField {
			return true
		}
	}
	return false
}

// Warnings lists fields fed by more than one column. The rightmost column
// wins during Transform, so each warning names it.
func (m FieldMapping) Warnings(columns []string) []string {
	byField := make(map[domain.Field][]string)
	for _, col := range columns {
		f := m.Target(col)
		if f == Ignore {
			continue
		}
		byField[f] = append(byField[f], col)
	}
	fields := make([]domain.Field, 0, len(byField))
	for f, cols := range byField {
		if len(cols) > 1 {
			fields = append(fields, f)
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fieldOrder(fields[i]) < fieldOrder(fields[j]) })

	var warnings []string
	for _, f := range fields {
		cols := byField[f]
		warnings = append(warnings, fmt.Sprintf("Columns %s all map to %s; values from %q are used",
			quoteJoin(cols), domain.LabelOf(f), cols[len(cols)-1]))
	}
	return warnings
}

func fieldOrder(f domain.Field) int {
	for i, spec := range domain.StudentFields {
		if spec.Name == f {
			return i
		}
	}
	return len(domain.StudentFields)
}

func quoteJoin(items []string) string {
	q := make([]string, len(items))
	for i, s := range items {
		q[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(q, ", ")
}
