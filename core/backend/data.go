package backend

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/projekt-software-engineering/ticket-backend/core"
	"github.com/projekt-software-engineering/ticket-backend/core/access"
	"github.com/projekt-software-engineering/ticket-backend/core/docstore"
	"github.com/projekt-software-engineering/ticket-backend/core/entity"
	"github.com/projekt-software-engineering/ticket-backend/core/logger"
)

// dataRequest is the decoded prelude of one data endpoint request.
type dataRequest struct {
	entityType entity.Type
	schema     entity.Schema
	identity   *access.Identity
}

// dataPrelude authenticates the caller and validates the entity type. It
// returns false if a response was already written.
func (b *Backend) dataPrelude(w http.ResponseWriter, r *http.Request) (dataRequest, bool) {
	rlog := logger.FromContext(r.Context())

	identity := access.IdentityFromContext(r.Context())
	if identity == nil {
		errorMessage := "No Authorization header provided!"
		rlog.Errorln("not able to authenticate user:", errorMessage)
		b.respondText(w, http.StatusUnauthorized, errorMessage)
		return dataRequest{}, false
	}

	entityType, ok := entity.FromPathSegment(mux.Vars(r)["entity"])
	if !ok {
		b.respondText(w, http.StatusBadRequest, "Invalid Entity Type")
		return dataRequest{}, false
	}
	rlog.Debugf("request for entity type '%s'", entityType)

	return dataRequest{
		entityType: entityType,
		schema:     entity.Mappings[entityType],
		identity:   identity,
	}, true
}

// mutationGuard runs the role gate for mutating requests. Mutations require
// the admin role, except creating or updating a ticket: any authenticated
// caller may create a ticket, and updates are narrowed to the caller's own
// tickets by the ownership rule in dataUpdate.
func (b *Backend) mutationGuard(w http.ResponseWriter, r *http.Request, req dataRequest) bool {
	ticketException := req.entityType == entity.Ticket &&
		(r.Method == http.MethodPost || r.Method == http.MethodPut)
	if !ticketException && !req.identity.HasRole(access.RoleAdmin) {
		errorMessage := "User does not have required rights to perform action!"
		logger.FromContext(r.Context()).Errorln(errorMessage)
		b.respondText(w, http.StatusForbidden, errorMessage)
		return false
	}
	return true
}

// readOnlyGuard rejects single-element access to read-only entity types.
func (b *Backend) readOnlyGuard(w http.ResponseWriter, r *http.Request, req dataRequest) bool {
	if req.schema.ReadOnly {
		errorMessage := "Entity cannot be modified!"
		logger.FromContext(r.Context()).Errorln(errorMessage)
		b.respondText(w, http.StatusMethodNotAllowed, errorMessage)
		return false
	}
	return true
}

// validateBody enforces the presence of every schema field and, when a
// JSON schema is registered for the type, full schema validation.
func (b *Backend) validateBody(w http.ResponseWriter, r *http.Request, req dataRequest) (map[string]interface{}, bool) {
	rlog := logger.FromContext(r.Context())
	body := requestBody(r)
	if missingFields(body, req.schema.Fields) {
		errorMessage := "Not all required fields are provided! Required fields are: " +
			strings.Join(req.schema.Fields, ", ")
		rlog.Errorln(errorMessage)
		b.respondText(w, http.StatusBadRequest, errorMessage)
		return nil, false
	}
	relevant := relevantFields(body, req.schema.Fields)
	if req.schema.SchemaID != "" && b.validator.HasSchema(req.schema.SchemaID) {
		if err := b.validator.ValidateStruct(relevant, req.schema.SchemaID); err != nil {
			rlog.Errorln("schema validation failed:", err)
			b.respondText(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
	}
	return relevant, true
}

// duplicateFilters derives the duplicate probe from the submitted fields:
// one equality constraint per field.
func duplicateFilters(fields map[string]interface{}) []docstore.Filter {
	filters := make([]docstore.Filter, 0, len(fields))
	for field, value := range fields {
		filters = append(filters, docstore.Eq(field, value))
	}
	return filters
}

// dataList handles GET /data/{entity}.
func (b *Backend) dataList(w http.ResponseWriter, r *http.Request) {
	req, ok := b.dataPrelude(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	collection := req.entityType.Collection()

	var (
		status  int
		payload interface{}
	)
	if !access.HasRequiredRole(req.entityType, entity.Ticket, access.RoleEditor, req.identity) {
		// requesters only see their own created tickets
		status, payload = b.operator.FindAll(ctx, collection,
			[]docstore.Filter{docstore.Eq("created_by", req.identity.UserID)})
	} else if req.entityType == entity.TicketHistory || req.entityType == entity.Comment {
		ticketID := r.URL.Query().Get("ticket_id")
		status, payload = b.operator.FindAll(ctx, collection,
			[]docstore.Filter{docstore.Eq("ticket_id", ticketID)})
	} else {
		status, payload = b.operator.ReadAll(ctx, collection)
	}

	if status == http.StatusOK {
		b.respondJSON(w, status, payload)
		return
	}
	b.respondText(w, status, payload.(string))
}

// dataCreate handles POST /data/{entity}.
func (b *Backend) dataCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := b.dataPrelude(w, r)
	if !ok {
		return
	}
	if !b.mutationGuard(w, r, req) {
		return
	}
	fields, ok := b.validateBody(w, r, req)
	if !ok {
		return
	}
	collection := req.entityType.Collection()

	status, payload := b.operator.Create(r.Context(), collection, fields, "", duplicateFilters(fields))
	if status != http.StatusCreated && status != http.StatusConflict {
		b.respondText(w, status, payload.(string))
		return
	}
	if status == http.StatusCreated {
		b.notify(r, collection, core.OperationCreate, payload.(string))
	}
	b.respondJSON(w, status, map[string]interface{}{"id": payload})
}

// dataRead handles GET /data/{entity}/{id}.
func (b *Backend) dataRead(w http.ResponseWriter, r *http.Request) {
	req, ok := b.dataPrelude(w, r)
	if !ok {
		return
	}
	if !b.readOnlyGuard(w, r, req) {
		return
	}
	id := mux.Vars(r)["id"]

	status, payload := b.operator.Read(r.Context(), req.entityType.Collection(), id)
	if status != http.StatusOK {
		b.respondText(w, status, payload.(string))
		return
	}
	record := payload.(map[string]interface{})

	// requesters are only allowed to read their own tickets
	if !access.HasRequiredRole(req.entityType, entity.Ticket, access.RoleEditor, req.identity) {
		if createdBy, _ := record["created_by"].(string); createdBy != req.identity.UserID {
			errorMessage := "User does not have required rights to load ticket!"
			logger.FromContext(r.Context()).Errorln(errorMessage)
			b.respondText(w, http.StatusForbidden, errorMessage)
			return
		}
	}
	b.respondJSON(w, status, record)
}

// dataUpdate handles PUT /data/{entity}/{id}.
func (b *Backend) dataUpdate(w http.ResponseWriter, r *http.Request) {
	req, ok := b.dataPrelude(w, r)
	if !ok {
		return
	}
	if !b.readOnlyGuard(w, r, req) {
		return
	}
	if !b.mutationGuard(w, r, req) {
		return
	}
	fields, ok := b.validateBody(w, r, req)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	collection := req.entityType.Collection()

	// requesters are only allowed to update their own tickets
	allowedUpdater := ""
	if !access.HasRequiredRole(req.entityType, entity.Ticket, access.RoleEditor, req.identity) {
		allowedUpdater = req.identity.UserID
	}
	historyType := ""
	if req.entityType == entity.Ticket {
		historyType = entity.TicketHistory.Collection()
	}

	status, payload := b.operator.Update(r.Context(), collection, fields, id,
		duplicateFilters(fields), allowedUpdater, historyType)
	if status != http.StatusOK && status != http.StatusConflict {
		b.respondText(w, status, payload.(string))
		return
	}
	if status == http.StatusOK {
		b.notify(r, collection, core.OperationUpdate, id)
	}
	b.respondJSON(w, status, map[string]interface{}{"id": payload})
}

// dataDelete handles DELETE /data/{entity}/{id}.
func (b *Backend) dataDelete(w http.ResponseWriter, r *http.Request) {
	req, ok := b.dataPrelude(w, r)
	if !ok {
		return
	}
	if !b.readOnlyGuard(w, r, req) {
		return
	}
	rlog := logger.FromContext(r.Context())
	id := mux.Vars(r)["id"]

	if req.schema.NoDelete {
		errorMessage := "Tickets cannot be deleted!"
		rlog.Errorln(errorMessage)
		b.respondText(w, http.StatusMethodNotAllowed, errorMessage)
		return
	}
	if !b.mutationGuard(w, r, req) {
		return
	}

	if req.entityType == entity.Course {
		// a course referenced by any ticket must not disappear; a failed
		// guard query blocks the deletion as well
		status, payload := b.operator.FindAll(r.Context(), entity.Ticket.Collection(),
			[]docstore.Filter{docstore.Eq("course_id", id)})
		referencing, _ := payload.([]map[string]interface{})
		if status != http.StatusOK || len(referencing) > 0 {
			errorMessage := "Course cannot be deleted! Tickets are refereing to them!"
			rlog.Errorln(errorMessage)
			b.respondText(w, http.StatusConflict, errorMessage)
			return
		}
	}

	status, payload := b.operator.Delete(r.Context(), req.entityType.Collection(), id)
	if status != http.StatusNoContent {
		b.respondText(w, status, payload.(string))
		return
	}
	b.notify(r, req.entityType.Collection(), core.OperationDelete, id)
	b.respondText(w, status, "")
}
