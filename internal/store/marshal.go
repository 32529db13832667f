package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/bsched/internal/ir"
)

// marshalTaskIDs converts a task list to canonical JSON TEXT for storage.
func marshalTaskIDs(ids []ir.TaskID) (string, error) {
	ints := make([]int, len(ids))
	for i, id := range ids {
		ints[i] = int(id)
	}
	data, err := ir.MarshalCanonical(ints)
	if err != nil {
		return "", fmt.Errorf("marshal task ids: %w", err)
	}
	return string(data), nil
}

// unmarshalTaskIDs parses a JSON TEXT task list. The result is never nil.
func unmarshalTaskIDs(data string) ([]ir.TaskID, error) {
	ids := []ir.TaskID{}
	if data == "" || data == "[]" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal task ids: %w", err)
	}
	return ids, nil
}

// marshalTarget converts a Target to JSON TEXT.
// Target is a struct with a map field, so it goes through json.Encoder
// (map keys sorted) with HTML escaping disabled.
func marshalTarget(t ir.Target) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(t); err != nil {
		return "", fmt.Errorf("marshal target: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalTarget parses JSON TEXT to a Target.
func unmarshalTarget(data string) (ir.Target, error) {
	var t ir.Target
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return ir.Target{}, fmt.Errorf("unmarshal target: %w", err)
	}
	return t, nil
}
