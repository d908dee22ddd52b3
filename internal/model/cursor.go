package model

// Cursor is the durable per-source resume position. API and RSS sources track
// the last processed source record id; CSV sources track the last row offset.
type Cursor struct {
	LastID string `json:"lastId,omitempty"`
	Offset int64  `json:"offset,omitempty"`
}

func (c Cursor) IsZero() bool {
	return c.LastID == "" && c.Offset == 0
}

func (c Cursor) Equal(other Cursor) bool {
	return c.LastID == other.LastID && c.Offset == other.Offset
}

// Before reports whether c strictly precedes other in source order. Ids
// order first and compare lexically; every id format the extractors persist
// (RFC 3339 timestamps) sorts correctly that way. CSV cursors keep the id
// empty, so the row offset governs.
func (c Cursor) Before(other Cursor) bool {
	if c.LastID != other.LastID {
		return c.LastID < other.LastID
	}
	return c.Offset < other.Offset
}
