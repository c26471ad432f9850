package operator

import (
	"reflect"
	"testing"
)

func TestDiffFields(t *testing.T) {
	stored := map[string]interface{}{
		"title":       "broken build",
		"status":      "open",
		"priority":    "low",
		"assignee_id": nil,
	}
	payload := map[string]interface{}{
		"title":       "broken build",
		"status":      "closed",
		"assignee_id": "u1",
	}

	previous, changed := diffFields(stored, payload)

	wantPrevious := map[string]interface{}{"status": "open", "assignee_id": nil}
	wantChanged := map[string]interface{}{"status": "closed", "assignee_id": "u1"}
	if !reflect.DeepEqual(previous, wantPrevious) {
		t.Fatal("unexpected previous values:", previous)
	}
	if !reflect.DeepEqual(changed, wantChanged) {
		t.Fatal("unexpected changed values:", changed)
	}
}

func TestDiffFieldsIgnoresOmittedKeys(t *testing.T) {
	stored := map[string]interface{}{"title": "a", "status": "open"}
	payload := map[string]interface{}{"status": "open"}

	previous, changed := diffFields(stored, payload)
	if len(previous) != 0 || len(changed) != 0 {
		t.Fatal("identical payload produced a diff:", previous, changed)
	}
}

func TestDiffFieldsNormalizesNumbers(t *testing.T) {
	// a decoded request body carries float64, the stored value may be int
	stored := map[string]interface{}{"priority": 1}
	payload := map[string]interface{}{"priority": float64(1)}

	previous, changed := diffFields(stored, payload)
	if len(previous) != 0 || len(changed) != 0 {
		t.Fatal("equal numbers diffed after normalization:", previous, changed)
	}

	payload["priority"] = float64(2)
	previous, changed = diffFields(stored, payload)
	if changed["priority"] != float64(2) {
		t.Fatal("effective change not detected:", changed)
	}
}
