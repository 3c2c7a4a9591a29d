package domain

// StudentPatch is a partial student keyed by field name. Creates carry every
// mapped field; updates carry the identifier plus the approved fields only.
// A nil value clears the field.
type StudentPatch map[Field]any

// ID returns the identifier carried by the patch.
func (p StudentPatch) ID() string {
	s, _ := p[IdentifierField].(string)
	return s
}

// BulkImportPayload is the single combined create/update request sent to the
// backend at commit time.
type BulkImportPayload struct {
	Create []StudentPatch `json:"create"`
	Update []StudentPatch `json:"update"`
}

// Len returns the number of rows in the payload.
func (p BulkImportPayload) Len() int {
	return len(p.Create) + len(p.Update)
}

// ImportResult is the backend's answer to a bulk import.
type ImportResult struct {
	CreatedCount int      `json:"createdCount"`
	UpdatedCount int      `json:"updatedCount"`
	SkippedCount int      `json:"skippedCount"`
	Errors       []string `json:"errors"`
}
