package operator

import (
	"context"
	"net/http"
	"reflect"
	"testing"

	"github.com/projekt-software-engineering/ticket-backend/core/access"
	"github.com/projekt-software-engineering/ticket-backend/core/docstore"
	"github.com/projekt-software-engineering/ticket-backend/core/entity"
)

var displayNames = map[string]string{
	"creator-1":  "Carla Creator",
	"assignee-1": "Albert Assignee",
}

func newTestOperator() (*Operator, *docstore.Memory) {
	collections := map[string][]string{}
	for entityType, schema := range entity.Mappings {
		collections[entityType.Collection()] = schema.Fields
	}
	store := docstore.NewMemory(collections)
	return New(&Builder{
		Store: store,
		NameLookup: func(_ context.Context, userID string) string {
			if name, ok := displayNames[userID]; ok {
				return name
			}
			return "Unknown"
		},
	}), store
}

func contextFor(userID string, roles ...access.Role) context.Context {
	return access.ContextWithIdentity(context.Background(),
		&access.Identity{UserID: userID, Roles: roles})
}

func TestCreateAndRead(t *testing.T) {
	o, _ := newTestOperator()
	ctx := contextFor("creator-1", access.RoleAdmin)

	status, payload := o.Create(ctx, "course", map[string]interface{}{
		"course_abbreviation": "ISEF01",
		"name":                "Software Engineering",
	}, "", nil)
	if status != http.StatusCreated {
		t.Fatal("unexpected status:", status, payload)
	}
	id, ok := payload.(string)
	if !ok || id == "" {
		t.Fatal("create did not return an id")
	}

	status, payload = o.Read(ctx, "course", id)
	if status != http.StatusOK {
		t.Fatal("unexpected status:", status, payload)
	}
	record := payload.(map[string]interface{})
	if record["id"] != id {
		t.Fatal("record misses its id")
	}
	if record["course_abbreviation"] != "ISEF01" || record["name"] != "Software Engineering" {
		t.Fatal("unexpected record:", record)
	}
	if record["created_by"] != "creator-1" || record["modified_by"] != "creator-1" {
		t.Fatal("system fields not stamped:", record)
	}
	if record["created_at"] == nil || record["created_at"] != record["modified_at"] {
		t.Fatal("timestamps not stamped on create:", record)
	}
	if record["created_by_name"] != "Carla Creator" {
		t.Fatal("creator name not resolved:", record)
	}

	// the record carries the submitted fields, the system fields and the
	// resolved names, nothing else
	expectedKeys := []string{
		"id", "course_abbreviation", "name",
		"created_at", "created_by", "created_by_name",
		"modified_at", "modified_by", "modified_by_name",
	}
	if len(record) != len(expectedKeys) {
		t.Fatal("record carries unexpected fields:", record)
	}
	for _, key := range expectedKeys {
		if _, ok := record[key]; !ok {
			t.Fatal("record misses field:", key)
		}
	}
}

func TestReadNotFound(t *testing.T) {
	o, _ := newTestOperator()
	status, payload := o.Read(context.Background(), "course", "does-not-exist")
	if status != http.StatusNotFound || payload != "Element not found!" {
		t.Fatal("unexpected response:", status, payload)
	}
}

func TestCreateUnknownCollection(t *testing.T) {
	o, _ := newTestOperator()
	status, _ := o.Create(context.Background(), "nonsense", map[string]interface{}{}, "", nil)
	if status != http.StatusInternalServerError {
		t.Fatal("unexpected status:", status)
	}
}

func TestCreateDuplicate(t *testing.T) {
	o, _ := newTestOperator()
	ctx := contextFor("creator-1", access.RoleAdmin)

	fields := map[string]interface{}{
		"course_abbreviation": "ISEF01",
		"name":                "Software Engineering",
	}
	filters := []docstore.Filter{
		docstore.Eq("course_abbreviation", "ISEF01"),
		docstore.Eq("name", "Software Engineering"),
	}
	status, payload := o.Create(ctx, "course", fields, "", filters)
	if status != http.StatusCreated {
		t.Fatal("unexpected status:", status, payload)
	}
	existingID := payload.(string)

	status, payload = o.Create(ctx, "course", fields, "", filters)
	if status != http.StatusConflict {
		t.Fatal("duplicate not detected:", status, payload)
	}
	if payload.(string) != existingID {
		t.Fatal("conflict does not reference the existing document")
	}
}

func TestCreateWithExplicitID(t *testing.T) {
	o, _ := newTestOperator()
	ctx := contextFor("creator-1", access.RoleAdmin)

	status, payload := o.Create(ctx, "course", map[string]interface{}{
		"course_abbreviation": "A",
		"name":                "a",
	}, "fixed-id", nil)
	if status != http.StatusCreated || payload.(string) != "fixed-id" {
		t.Fatal("explicit id not honored:", status, payload)
	}

	// same id again overwrites, the write is an upsert
	status, _ = o.Create(ctx, "course", map[string]interface{}{
		"course_abbreviation": "B",
		"name":                "b",
	}, "fixed-id", nil)
	if status != http.StatusCreated {
		t.Fatal("upsert rejected:", status)
	}
	status, payload = o.Read(ctx, "course", "fixed-id")
	if status != http.StatusOK || payload.(map[string]interface{})["course_abbreviation"] != "B" {
		t.Fatal("upsert did not overwrite:", payload)
	}
}

func TestUpdateOwnership(t *testing.T) {
	o, _ := newTestOperator()
	creatorCtx := contextFor("creator-1", access.RoleRequester)

	status, payload := o.Create(creatorCtx, "ticket", map[string]interface{}{
		"title": "t", "description": "d", "course_id": "", "status": "open",
		"priority": "low", "type": "bug", "assignee_id": "",
	}, "", nil)
	if status != http.StatusCreated {
		t.Fatal("unexpected status:", status, payload)
	}
	id := payload.(string)

	otherCtx := contextFor("someone-else", access.RoleRequester)
	status, payload = o.Update(otherCtx, "ticket",
		map[string]interface{}{"status": "closed"}, id, nil, "someone-else", "")
	if status != http.StatusForbidden {
		t.Fatal("foreign update not refused:", status, payload)
	}
	if payload != "Not allowed to update entry!" {
		t.Fatal("unexpected message:", payload)
	}

	status, _ = o.Update(creatorCtx, "ticket",
		map[string]interface{}{"status": "closed"}, id, nil, "creator-1", "")
	if status != http.StatusOK {
		t.Fatal("own update refused:", status)
	}
}

func TestUpdateWritesHistory(t *testing.T) {
	o, _ := newTestOperator()
	ctx := contextFor("creator-1", access.RoleAdmin)

	status, payload := o.Create(ctx, "ticket", map[string]interface{}{
		"title": "broken build", "description": "d", "course_id": "", "status": "open",
		"priority": "low", "type": "bug", "assignee_id": "",
	}, "", nil)
	if status != http.StatusCreated {
		t.Fatal("unexpected status:", status, payload)
	}
	id := payload.(string)

	status, _ = o.Update(ctx, "ticket", map[string]interface{}{
		"title": "broken build", "status": "closed",
	}, id, nil, "", "ticket_history")
	if status != http.StatusOK {
		t.Fatal("update failed:", status)
	}

	status, payload = o.FindAll(ctx, "ticket_history", []docstore.Filter{docstore.Eq("ticket_id", id)})
	if status != http.StatusOK {
		t.Fatal("history query failed:", status, payload)
	}
	histories := payload.([]map[string]interface{})
	if len(histories) != 1 {
		t.Fatal("expected exactly one history record, got", len(histories))
	}
	previous := histories[0]["previous_values"].(map[string]interface{})
	changed := histories[0]["changed_values"].(map[string]interface{})
	// unchanged fields must not appear in the diff
	if len(previous) != 1 || len(changed) != 1 {
		t.Fatal("diff not restricted to changed fields:", previous, changed)
	}
	if previous["status"] != "open" || changed["status"] != "closed" {
		t.Fatal("unexpected diff:", previous, changed)
	}

	// an update without an effective change writes no history
	status, _ = o.Update(ctx, "ticket", map[string]interface{}{"status": "closed"},
		id, nil, "", "ticket_history")
	if status != http.StatusOK {
		t.Fatal("no-op update failed:", status)
	}
	_, payload = o.FindAll(ctx, "ticket_history", []docstore.Filter{docstore.Eq("ticket_id", id)})
	if len(payload.([]map[string]interface{})) != 1 {
		t.Fatal("no-op update wrote a history record")
	}
}

func TestUpdateDuplicateAllowsSelf(t *testing.T) {
	o, _ := newTestOperator()
	ctx := contextFor("creator-1", access.RoleAdmin)

	fields := map[string]interface{}{
		"course_abbreviation": "ISEF01",
		"name":                "Software Engineering",
	}
	filters := []docstore.Filter{docstore.Eq("course_abbreviation", "ISEF01")}
	_, payload := o.Create(ctx, "course", fields, "", filters)
	id := payload.(string)

	// re-submitting the same values for the same document is no conflict
	status, _ := o.Update(ctx, "course", fields, id, filters, "", "")
	if status != http.StatusOK {
		t.Fatal("self match treated as duplicate:", status)
	}

	// but matching another document is
	otherFields := map[string]interface{}{
		"course_abbreviation": "ISEF02",
		"name":                "Other",
	}
	_, payload = o.Create(ctx, "course", otherFields, "", nil)
	otherID := payload.(string)
	status, payload = o.Update(ctx, "course", fields, otherID, filters, "", "")
	if status != http.StatusConflict || payload.(string) != id {
		t.Fatal("cross document duplicate not detected:", status, payload)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	o, _ := newTestOperator()
	ctx := contextFor("creator-1", access.RoleAdmin)

	_, payload := o.Create(ctx, "course", map[string]interface{}{
		"course_abbreviation": "A", "name": "a",
	}, "", nil)
	id := payload.(string)

	status, _ := o.Delete(ctx, "course", id)
	if status != http.StatusNoContent {
		t.Fatal("unexpected status:", status)
	}
	status, _ = o.Delete(ctx, "course", id)
	if status != http.StatusNoContent {
		t.Fatal("repeated delete must succeed:", status)
	}
	status, _ = o.Read(ctx, "course", id)
	if status != http.StatusNotFound {
		t.Fatal("document still readable after delete")
	}
}

func TestFindUnknownField(t *testing.T) {
	o, _ := newTestOperator()
	status, payload := o.FindAll(context.Background(), "ticket",
		[]docstore.Filter{docstore.Eq("color", "red")})
	if status != http.StatusBadRequest || payload != "Filter field is not known!" {
		t.Fatal("unexpected response:", status, payload)
	}
}

func TestTicketReferenceResolution(t *testing.T) {
	o, _ := newTestOperator()
	ctx := contextFor("creator-1", access.RoleAdmin)

	_, payload := o.Create(ctx, "course", map[string]interface{}{
		"course_abbreviation": "ISEF01",
		"name":                "Software Engineering",
	}, "", nil)
	courseID := payload.(string)

	_, payload = o.Create(ctx, "ticket", map[string]interface{}{
		"title": "t", "description": "d", "course_id": courseID, "status": "open",
		"priority": "low", "type": "bug", "assignee_id": "assignee-1",
	}, "", nil)
	ticketID := payload.(string)

	status, payload := o.Read(ctx, "ticket", ticketID)
	if status != http.StatusOK {
		t.Fatal("unexpected status:", status, payload)
	}
	record := payload.(map[string]interface{})
	if record["course_name"] != "Software Engineering" || record["course_abbreviation"] != "ISEF01" {
		t.Fatal("course reference not resolved:", record)
	}
	if record["assignee_name"] != "Albert Assignee" {
		t.Fatal("assignee reference not resolved:", record)
	}
}

func TestTicketResolutionSkipsMissingReferences(t *testing.T) {
	o, _ := newTestOperator()
	ctx := contextFor("creator-1", access.RoleAdmin)

	_, payload := o.Create(ctx, "ticket", map[string]interface{}{
		"title": "t", "description": "d", "course_id": "no-such-course", "status": "open",
		"priority": "low", "type": "bug", "assignee_id": "",
	}, "", nil)
	ticketID := payload.(string)

	status, payload := o.Read(ctx, "ticket", ticketID)
	if status != http.StatusOK {
		t.Fatal("missing reference must not fail the read:", status, payload)
	}
	record := payload.(map[string]interface{})
	if _, ok := record["course_name"]; ok {
		t.Fatal("unresolvable course still enriched")
	}
	// an empty assignee id yields no assignee name
	if _, ok := record["assignee_name"]; ok {
		t.Fatal("empty assignee id still enriched")
	}
}

func TestHistoryReferenceResolution(t *testing.T) {
	o, _ := newTestOperator()
	ctx := contextFor("creator-1", access.RoleAdmin)

	_, payload := o.Create(ctx, "course", map[string]interface{}{
		"course_abbreviation": "ISEF01",
		"name":                "Software Engineering",
	}, "", nil)
	courseID := payload.(string)

	_, payload = o.Create(ctx, "ticket", map[string]interface{}{
		"title": "t", "description": "d", "course_id": "", "status": "open",
		"priority": "low", "type": "bug", "assignee_id": "",
	}, "", nil)
	ticketID := payload.(string)

	status, _ := o.Update(ctx, "ticket", map[string]interface{}{"course_id": courseID},
		ticketID, nil, "", "ticket_history")
	if status != http.StatusOK {
		t.Fatal("update failed:", status)
	}

	_, payload = o.FindAll(ctx, "ticket_history", []docstore.Filter{docstore.Eq("ticket_id", ticketID)})
	histories := payload.([]map[string]interface{})
	if len(histories) != 1 {
		t.Fatal("expected one history record, got", len(histories))
	}
	changed := histories[0]["changed_values"].(map[string]interface{})
	if changed["course_name"] != "Software Engineering" {
		t.Fatal("course reference not resolved in changed values:", changed)
	}
	previous := histories[0]["previous_values"].(map[string]interface{})
	if _, ok := previous["course_name"]; ok {
		t.Fatal("previous values enriched without a course id")
	}
}

func TestHistoryEnrichmentNotPersisted(t *testing.T) {
	o, store := newTestOperator()
	ctx := contextFor("creator-1", access.RoleAdmin)

	_, payload := o.Create(ctx, "course", map[string]interface{}{
		"course_abbreviation": "ISEF01", "name": "Software Engineering",
	}, "", nil)
	courseID := payload.(string)
	_, payload = o.Create(ctx, "ticket", map[string]interface{}{
		"title": "t", "description": "d", "course_id": "", "status": "open",
		"priority": "low", "type": "bug", "assignee_id": "",
	}, "", nil)
	ticketID := payload.(string)

	status, _ := o.Update(ctx, "ticket", map[string]interface{}{"course_id": courseID},
		ticketID, nil, "", "ticket_history")
	if status != http.StatusOK {
		t.Fatal("update failed:", status)
	}

	// reading enriches the returned record only
	_, payload = o.FindAll(ctx, "ticket_history", []docstore.Filter{docstore.Eq("ticket_id", ticketID)})
	histories := payload.([]map[string]interface{})
	if len(histories) != 1 {
		t.Fatal("expected one history record, got", len(histories))
	}
	historyID := histories[0]["id"].(string)

	stored, err := store.Get(ctx, "ticket_history", historyID)
	if err != nil {
		t.Fatal("cannot load stored history record:", err)
	}
	changed := stored["changed_values"].(map[string]interface{})
	if _, ok := changed["course_name"]; ok {
		t.Fatal("read time enrichment leaked into the stored document:", changed)
	}
	if _, ok := changed["course_abbreviation"]; ok {
		t.Fatal("read time enrichment leaked into the stored document:", changed)
	}
}

func TestEnrichmentIsIdempotent(t *testing.T) {
	o, _ := newTestOperator()
	ctx := contextFor("creator-1", access.RoleAdmin)

	_, payload := o.Create(ctx, "course", map[string]interface{}{
		"course_abbreviation": "ISEF01", "name": "Software Engineering",
	}, "", nil)
	courseID := payload.(string)
	_, payload = o.Create(ctx, "ticket", map[string]interface{}{
		"title": "t", "description": "d", "course_id": courseID, "status": "open",
		"priority": "low", "type": "bug", "assignee_id": "",
	}, "", nil)
	ticketID := payload.(string)

	_, first := o.Read(ctx, "ticket", ticketID)
	_, second := o.Read(ctx, "ticket", ticketID)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("enrichment differs across reads: %v vs %v", first, second)
	}
}
