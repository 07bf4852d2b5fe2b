package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/aiguard/internal/ir"
)

// marshalRecord converts a record to canonical JSON TEXT for storage.
func marshalRecord(rec ir.Mapping) (string, error) {
	data, err := ir.MarshalCanonical(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// unmarshalRecord parses canonical JSON TEXT back into a record.
func unmarshalRecord(data string) (ir.Mapping, error) {
	if data == "" || data == "{}" {
		return ir.Mapping{}, nil
	}
	var rec ir.Mapping
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

// marshalStrings stores a string slice as a JSON array; nil becomes [].
func marshalStrings(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	var s []string
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	if len(s) == 0 {
		return nil, nil
	}
	return s, nil
}
