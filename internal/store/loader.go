package store

import (
	"context"
	"fmt"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoadResult summarizes one batch write.
type LoadResult struct {
	Inserted int64
	Updated  int64
	Failed   int64
}

// Loader performs the idempotent batch write: raw archival plus unified
// upserts, all inside one transaction. The transaction is the atomicity
// boundary the checkpoint advances over.
type Loader struct {
	db *gorm.DB
}

var unifiedUpdateColumns = []string{
	"title", "description", "author", "category", "tags", "url",
	"price_usd", "market_cap", "volume_24h", "published_at",
	"raw_id", "extra", "problems", "updated_at",
}

// Load writes one batch. A single record's constraint failure is rolled back
// to a savepoint and counted, not fatal; a transaction-level failure leaves
// nothing visible and surfaces ErrLoadFailure.
func (l *Loader) Load(ctx context.Context, raws []model.RawRecord, records []model.UnifiedRecord) (LoadResult, error) {
	var result LoadResult

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(raws) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "source_type"}, {Name: "source_record_id"}},
				DoNothing: true,
			}).Create(&raws).Error; err != nil {
				return errors.Wrap(err, "archive raw batch")
			}
		}

		existing, err := l.existingKeys(tx, records)
		if err != nil {
			return err
		}
		rawIDs, err := l.rawIDs(tx, raws)
		if err != nil {
			return err
		}
		assignRawIDs(records, rawIDs)

		for i := range records {
			record := &records[i]
			key := recordKey(record.SourceType, record.SourceRecordID)

			savepoint := fmt.Sprintf("rec_%d", i)
			tx.SavePoint(savepoint)
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "source_type"}, {Name: "source_record_id"}},
				DoUpdates: clause.AssignmentColumns(unifiedUpdateColumns),
			}).Create(record).Error; err != nil {
				tx.RollbackTo(savepoint)
				result.Failed++
				logs.Warnf("load [%s/%s]: record write failed: %v", record.SourceType, record.SourceRecordID, err)
				continue
			}

			if existing[key] {
				result.Updated++
			} else {
				result.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return LoadResult{}, errors.Wrap(exception.ErrLoadFailure, err.Error())
	}
	return result, nil
}

func recordKey(sourceType enum.SourceType, sourceRecordID string) string {
	return sourceType.String() + "\x00" + sourceRecordID
}

// rawIDs resolves the archived raw row id for every record in the batch.
// Rows that conflicted on insert keep their original id, so the lookup goes
// through the table rather than the in-memory slice.
func (l *Loader) rawIDs(tx *gorm.DB, raws []model.RawRecord) (map[string]uint, error) {
	ids := make(map[string]uint, len(raws))
	if len(raws) == 0 {
		return ids, nil
	}

	pairs := make([][]any, 0, len(raws))
	for i := range raws {
		pairs = append(pairs, []any{raws[i].SourceType, raws[i].SourceRecordID})
	}

	var rows []model.RawRecord
	if err := tx.Select("id", "source_type", "source_record_id").
		Where("(source_type, source_record_id) IN ?", pairs).
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "probe raw record ids")
	}
	for i := range rows {
		ids[recordKey(rows[i].SourceType, rows[i].SourceRecordID)] = rows[i].ID
	}
	return ids, nil
}

// assignRawIDs links each unified record to its archived raw row.
func assignRawIDs(records []model.UnifiedRecord, ids map[string]uint) {
	for i := range records {
		records[i].RawID = ids[recordKey(records[i].SourceType, records[i].SourceRecordID)]
	}
}

func (l *Loader) existingKeys(tx *gorm.DB, records []model.UnifiedRecord) (map[string]bool, error) {
	existing := make(map[string]bool, len(records))
	if len(records) == 0 {
		return existing, nil
	}

	pairs := make([][]any, 0, len(records))
	for i := range records {
		pairs = append(pairs, []any{records[i].SourceType, records[i].SourceRecordID})
	}

	var rows []model.UnifiedRecord
	if err := tx.Select("source_type", "source_record_id").
		Where("(source_type, source_record_id) IN ?", pairs).
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "probe existing unified keys")
	}
	for i := range rows {
		existing[recordKey(rows[i].SourceType, rows[i].SourceRecordID)] = true
	}
	return existing, nil
}
