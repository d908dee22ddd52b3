package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"main/internal/model"
	"main/internal/model/enum"

	"github.com/yanun0323/errors"
)

// CSVConfig configures a file-backed CSV source.
type CSVConfig struct {
	SourceID  string
	Path      string
	BatchSize int
}

// CSV streams rows from a fixed path. The cursor is the last row offset
// already loaded; rows at or below it are skipped on resume.
type CSV struct {
	cfg    CSVConfig
	file   *os.File
	reader *csv.Reader
	header []string
	row    int64

	now func() time.Time
}

// NewCSV creates a CSV extractor for one run.
func NewCSV(cfg CSVConfig) *CSV {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &CSV{cfg: cfg, now: time.Now}
}

func (c *CSV) SourceID() string      { return c.cfg.SourceID }
func (c *CSV) Type() enum.SourceType { return enum.SourceTypeCSV }

// Close releases the file handle. Safe to call when nothing was opened.
func (c *CSV) Close() error {
	if c == nil || c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

func (c *CSV) open() error {
	f, err := os.Open(c.cfg.Path)
	if err != nil {
		return errors.Wrap(err, "open csv "+c.cfg.Path)
	}

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, "read csv header")
	}

	c.file = f
	c.reader = reader
	c.header = header
	c.row = 0
	return nil
}

// Extract reads the next batch of rows past the cursor offset.
func (c *CSV) Extract(ctx context.Context, cursor model.Cursor) (*Batch, error) {
	if c == nil {
		return nil, errors.New("nil csv extractor")
	}
	if c.file == nil {
		if err := c.open(); err != nil {
			return nil, err
		}
	}

	fileName := filepath.Base(c.cfg.Path)
	batch := &Batch{Next: cursor}

	for len(batch.Records) < c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fields, err := c.reader.Read()
		if err == io.EOF {
			batch.Done = true
			_ = c.Close()
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("read csv row %d", c.row+1))
		}
		c.row++

		// resume: rows covered by the checkpoint
		if c.row <= cursor.Offset {
			continue
		}

		payload := make(map[string]any, len(c.header))
		for i, name := range c.header {
			if i >= len(fields) {
				break
			}
			payload[name] = cleanValue(fields[i])
		}

		batch.Records = append(batch.Records, model.RawRecord{
			SourceID:       c.cfg.SourceID,
			SourceType:     enum.SourceTypeCSV,
			SourceRecordID: fmt.Sprintf("%s:%d", fileName, c.row),
			Payload:        payload,
			Offset:         c.row,
			Checksum:       model.ComputeChecksum(payload),
			IngestedAt:     c.now().UTC(),
		})
		batch.Next = model.Cursor{Offset: c.row}
	}

	return batch, nil
}

// cleanValue normalizes a raw CSV cell: null-ish tokens become nil, numeric
// and boolean strings become typed values, everything else stays a string.
func cleanValue(value string) any {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "", "null", "none", "n/a", "na", "-":
		return nil
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}

	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
