package dataset

import (
	"fmt"
	"sort"
)

// Features is the model-ready rendering of a batch of raw feature records:
// one row per record, columns in a stable order shared by every row.
type Features struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// Provider converts raw records into feature tensors and opens resumable
// labelling computations over its underlying data.
type Provider interface {
	MaterializeFeatures(records []map[string]any) (Features, error)

	OpenLabellingSession(sessionID string, batchSize int, readerInputs map[string]any) (Computation, error)
}

// RecordProvider serves features and labelling batches from in-memory
// records. Labelling sessions read their records from the reader inputs
// supplied on session initialization (key "records").
type RecordProvider struct{}

func NewRecordProvider() *RecordProvider {
	return &RecordProvider{}
}

func (p *RecordProvider) MaterializeFeatures(records []map[string]any) (Features, error) {
	if len(records) == 0 {
		return Features{}, fmt.Errorf("no feature records provided")
	}

	columns := make([]string, 0, len(records[0]))
	for column := range records[0] {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	rows := make([][]float64, len(records))
	for i, record := range records {
		row := make([]float64, len(columns))
		for j, column := range columns {
			raw, ok := record[column]
			if !ok {
				return Features{}, fmt.Errorf("record %d is missing feature %q", i, column)
			}
			value, err := toFloat(raw)
			if err != nil {
				return Features{}, fmt.Errorf("record %d, feature %q: %w", i, column, err)
			}
			row[j] = value
		}
		rows[i] = row
	}

	return Features{Columns: columns, Rows: rows}, nil
}

func (p *RecordProvider) OpenLabellingSession(sessionID string, batchSize int, readerInputs map[string]any) (Computation, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	records, err := recordsFromReaderInputs(readerInputs)
	if err != nil {
		return nil, fmt.Errorf("error opening labelling session %s: %w", sessionID, err)
	}

	return newBatchComputation(records, batchSize), nil
}

func recordsFromReaderInputs(readerInputs map[string]any) ([]map[string]any, error) {
	raw, ok := readerInputs["records"]
	if !ok {
		return nil, fmt.Errorf("reader_inputs is missing required key 'records'")
	}
	return ToRecords(raw)
}

// ToRecords normalizes a decoded JSON value into a record slice. JSON bodies
// decode lists as []any, so both shapes are accepted.
func ToRecords(raw any) ([]map[string]any, error) {
	switch records := raw.(type) {
	case []map[string]any:
		return records, nil
	case []any:
		converted := make([]map[string]any, len(records))
		for i, item := range records {
			record, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %d is not an object", i)
			}
			converted[i] = record
		}
		return converted, nil
	default:
		return nil, fmt.Errorf("'records' must be a list of objects")
	}
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", value, value)
	}
}
