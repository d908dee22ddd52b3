package extract

import (
	"context"

	"main/internal/model"
	"main/internal/model/enum"
)

// Batch is one page of raw records plus the cursor that covers them. Next is
// only safe to checkpoint after the batch has been durably loaded.
type Batch struct {
	Records []model.RawRecord
	Next    model.Cursor
	Done    bool
}

// Extractor pulls raw records from one configured source. Implementations are
// created per run and may carry within-run state (open file handles, page
// counters); Extract never re-yields records already covered by the cursor.
type Extractor interface {
	SourceID() string
	Type() enum.SourceType
	Extract(ctx context.Context, cursor model.Cursor) (*Batch, error)
}

// Guard is the rate-limit surface extractors wrap around outbound calls.
type Guard interface {
	Acquire(ctx context.Context, sourceID string) error
	OnSuccess(sourceID string)
	OnFailure(sourceID string, retriable bool) error
}
