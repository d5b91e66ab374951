package accumulator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"energy-flow-monitor/internal/derive"
)

// Document schema, shared with the original storage format:
//
//	{
//	  "<metric_key>": {
//	    "<period_key>": {"start": "<iso8601>", "sum": <float>, "last_seq": <int>}
//	  },
//	  "self_sufficiency_ratio_parts": {
//	    "<period_key>": {"start": ..., "sum_imported": ..., "sum_produced": ..., "sum_exported": ..., "last_seq": ...}
//	  }
//	}
type recordDoc struct {
	Start   string          `json:"start"`
	Sum     decimal.Decimal `json:"sum"`
	LastSeq uint64          `json:"last_seq"`
}

type partsDoc struct {
	Start       string          `json:"start"`
	SumImported decimal.Decimal `json:"sum_imported"`
	SumProduced decimal.Decimal `json:"sum_produced"`
	SumExported decimal.Decimal `json:"sum_exported"`
	LastSeq     uint64          `json:"last_seq"`
}

func (a *Accumulator) marshalLocked() ([]byte, error) {
	doc := make(map[string]map[string]json.RawMessage)

	for key, byPeriod := range a.records {
		out := make(map[string]json.RawMessage, len(byPeriod))
		for pk, rec := range byPeriod {
			raw, err := json.Marshal(recordDoc{
				Start:   rec.Start.UTC().Format(time.RFC3339),
				Sum:     rec.Sum,
				LastSeq: rec.LastSeq,
			})
			if err != nil {
				return nil, fmt.Errorf("marshal record %s/%s: %w", key, pk, err)
			}
			out[pk] = raw
		}
		doc[string(key)] = out
	}

	parts := make(map[string]json.RawMessage, len(a.parts))
	for pk, rec := range a.parts {
		raw, err := json.Marshal(partsDoc{
			Start:       rec.Start.UTC().Format(time.RFC3339),
			SumImported: rec.Imported,
			SumProduced: rec.Produced,
			SumExported: rec.Exported,
			LastSeq:     rec.LastSeq,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal parts record %s: %w", pk, err)
		}
		parts[pk] = raw
	}
	if len(parts) > 0 {
		doc[partsBaseKey] = parts
	}

	return json.Marshal(doc)
}

func (a *Accumulator) unmarshalLocked(data []byte) error {
	var doc map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal accumulator document: %w", err)
	}

	for key, byPeriod := range doc {
		if key == partsBaseKey {
			for pk, raw := range byPeriod {
				var pd partsDoc
				if err := json.Unmarshal(raw, &pd); err != nil {
					return fmt.Errorf("unmarshal parts record %s: %w", pk, err)
				}
				start, err := time.Parse(time.RFC3339, pd.Start)
				if err != nil {
					return fmt.Errorf("parse parts start %s: %w", pk, err)
				}
				a.parts[pk] = &partsRecord{
					Start:    start,
					Imported: pd.SumImported,
					Produced: pd.SumProduced,
					Exported: pd.SumExported,
					LastSeq:  pd.LastSeq,
				}
			}
			continue
		}

		for pk, raw := range byPeriod {
			var rd recordDoc
			if err := json.Unmarshal(raw, &rd); err != nil {
				return fmt.Errorf("unmarshal record %s/%s: %w", key, pk, err)
			}
			start, err := time.Parse(time.RFC3339, rd.Start)
			if err != nil {
				return fmt.Errorf("parse record start %s/%s: %w", key, pk, err)
			}
			rec := a.recordLocked(derive.Kind(key), pk)
			rec.Start = start
			rec.Sum = rd.Sum
			rec.LastSeq = rd.LastSeq
		}
	}
	return nil
}
