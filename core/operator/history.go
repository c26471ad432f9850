package operator

import (
	"reflect"

	"github.com/goccy/go-json"
)

// diffFields computes the field level diff between the stored record and an
// update payload.
//
// Only keys present in the payload are considered; omitted fields are never
// diffed. The comparison is shallow, top-level key equality on JSON
// normalized values. The returned maps hold, per differing key, the stored
// value (previous) and the submitted value (changed).
func diffFields(stored, payload map[string]interface{}) (previousValues, changedValues map[string]interface{}) {
	previousValues = map[string]interface{}{}
	changedValues = map[string]interface{}{}
	for key, submitted := range payload {
		normalizedSubmitted := normalizeValue(submitted)
		if reflect.DeepEqual(normalizeValue(stored[key]), normalizedSubmitted) {
			continue
		}
		previousValues[key] = stored[key]
		changedValues[key] = submitted
	}
	return previousValues, changedValues
}

// normalizeValue round-trips a value through JSON so a decoded request body
// compares equal to the stored representation of the same value.
func normalizeValue(value interface{}) interface{} {
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return value
	}
	return normalized
}
