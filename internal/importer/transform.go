package importer

import (
	"github.com/ignite/eep-importer/internal/domain"
)

// MappedRecord is a partial student produced from one RawRow. Values holds
// only mapped fields; a nil value is an explicit null.
type MappedRecord struct {
	Row    int                  `json:"row"`
	Values map[domain.Field]any `json:"values"`
}

// ID returns the identifier, or "" when it is absent or null.
func (r MappedRecord) ID() string {
	s, _ := r.Values[domain.IdentifierField].(string)
	return s
}

// Has reports whether the field was mapped for this record.
func (r MappedRecord) Has(f domain.Field) bool {
	_, ok := r.Values[f]
	return ok
}

// Text returns the field as a string, "" when absent or null.
func (r MappedRecord) Text(f domain.Field) string {
	return textOf(r.Values[f])
}

// DisplayName renders the record for issue lists and review screens.
func (r MappedRecord) DisplayName() string {
	return domain.DisplayName(r.Text(domain.FieldFirstName), r.Text(domain.FieldLastName), r.ID())
}

// Fields returns the mapped fields in catalog order.
func (r MappedRecord) Fields() []domain.Field {
	out := make([]domain.Field, 0, len(r.Values))
	for _, spec := range domain.StudentFields {
		if _, ok := r.Values[spec.Name]; ok {
			out = append(out, spec.Name)
		}
	}
	return out
}

// Transform applies mapping to every row. Columns are applied left to right,
// so when several columns feed one field the rightmost wins. When nothing is
// mapped to the identifier no record can be matched and the result is empty.
func Transform(columns []string, rows []RawRow, mapping FieldMapping) []MappedRecord {
	if !mapping.MapsIdentifier() {
		return nil
	}
	out := make([]MappedRecord, 0, len(rows))
	for _, row := range rows {
		rec := MappedRecord{Row: row.RowNumber(), Values: make(map[domain.Field]any)}
		for _, col := range columns {
			f := mapping.Target(col)
			if f == Ignore {
				continue
			}
			rec.Values[f] = NormalizeCell(domain.KindOf(f), row.Get(col))
		}
		out = append(out, rec)
	}
	return out
}
