package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
)

// Unified field names addressable by a mapping.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldAuthor      = "author"
	FieldCategory    = "category"
	FieldTags        = "tags"
	FieldURL         = "url"
	FieldPriceUSD    = "price_usd"
	FieldMarketCap   = "market_cap"
	FieldVolume24h   = "volume_24h"
	FieldPublishedAt = "published_at"
)

// Mapping declares, per unified field, the raw field that feeds it.
type Mapping map[string]string

// Config tunes drift detection.
type Config struct {
	ConfidenceThreshold float64
}

// DefaultMappings covers the stock crypto sources.
func DefaultMappings() map[enum.SourceType]Mapping {
	return map[enum.SourceType]Mapping{
		enum.SourceTypeAPI: {
			FieldTitle:       "name",
			FieldCategory:    "symbol",
			FieldURL:         "image",
			FieldPriceUSD:    "current_price",
			FieldMarketCap:   "market_cap",
			FieldVolume24h:   "total_volume",
			FieldPublishedAt: "last_updated",
		},
		enum.SourceTypeCSV: {
			FieldTitle:       "name",
			FieldDescription: "description",
			FieldCategory:    "category",
			FieldPriceUSD:    "value",
			FieldPublishedAt: "date",
		},
		enum.SourceTypeRSS: {
			FieldTitle:       "title",
			FieldDescription: "description",
			FieldAuthor:      "author",
			FieldCategory:    "category",
			FieldURL:         "link",
			FieldPublishedAt: "pubDate",
		},
	}
}

type driftKey struct {
	sourceType enum.SourceType
	field      string
	kind       enum.DriftKind
}

// Normalizer maps raw heterogeneous records onto the unified schema and
// flags field drift instead of failing on it. Drift events are deduplicated
// to their first sighting per (source type, field, kind) for the lifetime of
// the normalizer.
type Normalizer struct {
	cfg      Config
	mappings map[enum.SourceType]Mapping
	seen     map[driftKey]struct{}

	now func() time.Time
}

// New creates a normalizer. Nil or partial mappings fall back to the stock
// per-source mappings.
func New(cfg Config, mappings map[enum.SourceType]Mapping) *Normalizer {
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		cfg.ConfidenceThreshold = 0.8
	}
	merged := DefaultMappings()
	for sourceType, mapping := range mappings {
		if len(mapping) > 0 {
			merged[sourceType] = mapping
		}
	}
	return &Normalizer{
		cfg:      cfg,
		mappings: merged,
		seen:     make(map[driftKey]struct{}),
		now:      time.Now,
	}
}

// Normalize maps one raw record to the unified schema. Returned drift events
// accompany the record; they never abort it. Only a record that cannot be
// keyed at all fails with ErrValidation.
func (n *Normalizer) Normalize(raw model.RawRecord) (*model.UnifiedRecord, []model.SchemaDrift, error) {
	if n == nil {
		return nil, nil, errors.New("nil normalizer")
	}
	if raw.SourceRecordID == "" {
		return nil, nil, errors.Wrap(exception.ErrValidation, "raw record without source record id")
	}

	mapping := n.mappings[raw.SourceType]
	record := &model.UnifiedRecord{
		SourceType:     raw.SourceType,
		SourceRecordID: raw.SourceRecordID,
	}

	var drifts []model.SchemaDrift
	consumed := make(map[string]struct{}, len(mapping))

	rawKeys := make([]string, 0, len(raw.Payload))
	for key := range raw.Payload {
		rawKeys = append(rawKeys, key)
	}

	for field, rawField := range mapping {
		value, ok := raw.Payload[rawField]
		usedKey := rawField

		if !ok {
			match, score := bestMatch(rawField, rawKeys)
			if score >= n.cfg.ConfidenceThreshold {
				value = raw.Payload[match]
				usedKey = match
				ok = true
				drifts = n.appendDrift(drifts, raw, model.SchemaDrift{
					FieldName:   match,
					TargetField: rawField,
					Kind:        enum.DriftKindRenamedField,
					Severity:    enum.DriftSeverityAutoCorrected,
					Confidence:  score,
					ActualType:  typeName(value),
					SampleValue: sampleValue(value),
				})
			} else {
				drifts = n.appendDrift(drifts, raw, model.SchemaDrift{
					FieldName:   rawField,
					TargetField: rawField,
					Kind:        enum.DriftKindMissingField,
					Severity:    enum.DriftSeverityHigh,
					Confidence:  1 - score,
				})
				continue
			}
		}
		consumed[usedKey] = struct{}{}

		if value == nil {
			continue
		}
		if err := setField(record, field, value); err != nil {
			record.Problems = append(record.Problems, fmt.Sprintf("%s: %v", field, err))
			drifts = n.appendDrift(drifts, raw, model.SchemaDrift{
				FieldName:   usedKey,
				TargetField: field,
				Kind:        enum.DriftKindTypeChange,
				Severity:    enum.DriftSeverityHigh,
				Confidence:  1,
				ActualType:  typeName(value),
				SampleValue: sampleValue(value),
			})
		}
	}

	// unconsumed keys ride along for audit and flag brand-new fields
	for key, value := range raw.Payload {
		if _, ok := consumed[key]; ok || strings.HasPrefix(key, "_") {
			continue
		}
		if record.Extra == nil {
			record.Extra = make(map[string]any)
		}
		record.Extra[key] = value
		drifts = n.appendDrift(drifts, raw, model.SchemaDrift{
			FieldName:   key,
			Kind:        enum.DriftKindNewField,
			Severity:    enum.DriftSeverityInfo,
			Confidence:  1,
			ActualType:  typeName(value),
			SampleValue: sampleValue(value),
		})
	}

	return record, drifts, nil
}

func (n *Normalizer) appendDrift(drifts []model.SchemaDrift, raw model.RawRecord, drift model.SchemaDrift) []model.SchemaDrift {
	key := driftKey{sourceType: raw.SourceType, field: drift.FieldName, kind: drift.Kind}
	if _, ok := n.seen[key]; ok {
		return drifts
	}
	n.seen[key] = struct{}{}

	drift.SourceID = raw.SourceID
	drift.SourceType = raw.SourceType
	drift.DetectedAt = n.now().UTC()
	return append(drifts, drift)
}

func setField(record *model.UnifiedRecord, field string, value any) error {
	switch field {
	case FieldTitle:
		return coerceString(value, &record.Title)
	case FieldDescription:
		return coerceString(value, &record.Description)
	case FieldAuthor:
		return coerceString(value, &record.Author)
	case FieldCategory:
		return coerceString(value, &record.Category)
	case FieldURL:
		return coerceString(value, &record.URL)
	case FieldTags:
		return coerceTags(value, &record.Tags)
	case FieldPriceUSD:
		return coerceDecimal(value, &record.PriceUSD)
	case FieldMarketCap:
		return coerceDecimal(value, &record.MarketCap)
	case FieldVolume24h:
		return coerceDecimal(value, &record.Volume24h)
	case FieldPublishedAt:
		return coerceTime(value, &record.PublishedAt)
	default:
		return errors.Errorf("unknown unified field %q", field)
	}
}

func coerceString(value any, dst *string) error {
	switch v := value.(type) {
	case string:
		*dst = strings.TrimSpace(v)
		return nil
	case float64, int64, int, bool:
		*dst = fmt.Sprint(v)
		return nil
	default:
		return errors.Errorf("cannot coerce %s to string", typeName(value))
	}
}

func coerceTags(value any, dst *[]string) error {
	switch v := value.(type) {
	case []string:
		*dst = v
		return nil
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return errors.Errorf("tag element is %s, not string", typeName(item))
			}
			tags = append(tags, strings.TrimSpace(s))
		}
		*dst = tags
		return nil
	case string:
		var tags []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				tags = append(tags, part)
			}
		}
		*dst = tags
		return nil
	default:
		return errors.Errorf("cannot coerce %s to tags", typeName(value))
	}
}

func coerceDecimal(value any, dst *decimal.Decimal) error {
	var text string
	switch v := value.(type) {
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		text = strconv.FormatInt(v, 10)
	case int:
		text = strconv.Itoa(v)
	case string:
		text = strings.TrimSpace(v)
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return errors.Errorf("%q is not numeric", v)
		}
	default:
		return errors.Errorf("cannot coerce %s to decimal", typeName(value))
	}
	return json.Unmarshal([]byte(strconv.Quote(text)), dst)
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
}

func coerceTime(value any, dst **time.Time) error {
	switch v := value.(type) {
	case time.Time:
		t := v.UTC()
		*dst = &t
		return nil
	case float64:
		t := time.Unix(int64(v), 0).UTC()
		*dst = &t
		return nil
	case int64:
		t := time.Unix(v, 0).UTC()
		*dst = &t
		return nil
	case string:
		v = strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				t = t.UTC()
				*dst = &t
				return nil
			}
		}
		return errors.Errorf("unparseable timestamp %q", v)
	default:
		return errors.Errorf("cannot coerce %s to timestamp", typeName(value))
	}
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64, int64, int:
		return "number"
	case string:
		return "string"
	case []any, []string:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func sampleValue(value any) string {
	if value == nil {
		return ""
	}
	s := fmt.Sprint(value)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
