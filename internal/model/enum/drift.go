package enum

// DriftKind classifies a detected schema drift.
type DriftKind string

const (
	DriftKindRenamedField DriftKind = "renamed_field"
	DriftKindNewField     DriftKind = "new_field"
	DriftKindMissingField DriftKind = "missing_field"
	DriftKindTypeChange   DriftKind = "type_change"
)

func (k DriftKind) IsAvailable() bool {
	switch k {
	case DriftKindRenamedField, DriftKindNewField, DriftKindMissingField, DriftKindTypeChange:
		return true
	default:
		return false
	}
}

// DriftSeverity grades how much attention a drift event deserves.
// Auto-corrected drifts were remapped with high confidence and the record
// still landed with the right value; high-severity drifts left a field null.
type DriftSeverity string

const (
	DriftSeverityInfo          DriftSeverity = "info"
	DriftSeverityAutoCorrected DriftSeverity = "auto_corrected"
	DriftSeverityHigh          DriftSeverity = "high"
)

func (s DriftSeverity) String() string {
	return string(s)
}
