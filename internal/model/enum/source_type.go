package enum

// SourceType identifies the kind of data source feeding the pipeline.
type SourceType string

const (
	SourceTypeUnknown SourceType = ""
	SourceTypeAPI     SourceType = "api"
	SourceTypeCSV     SourceType = "csv"
	SourceTypeRSS     SourceType = "rss"
)

func (s SourceType) IsAvailable() bool {
	switch s {
	case SourceTypeAPI, SourceTypeCSV, SourceTypeRSS:
		return true
	default:
		return false
	}
}

func (s SourceType) String() string {
	return string(s)
}
