/*Package operator implements the generic CRUD operator on top of the
document store.

The operator owns everything between the entity dispatcher and the raw
store: system field stamping, duplicate probes, ownership checks, change
history tracking and read-time reference resolution. Every operation
returns the status code and payload of the eventual HTTP response; the
dispatcher only shapes them onto the wire.

Duplicate probes and the subsequent writes are separate round trips. Two
concurrent creates with identical duplicate filter values can therefore
both succeed; this is an accepted limitation for a low-contention
administrative tool, there is no locking or transaction wrapping.
*/
package operator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/projekt-software-engineering/ticket-backend/core/access"
	"github.com/projekt-software-engineering/ticket-backend/core/docstore"
	"github.com/projekt-software-engineering/ticket-backend/core/logger"
)

// NameLookup resolves a subject id into a display name. Implementations
// must not fail; unresolvable ids yield "Unknown".
type NameLookup func(ctx context.Context, userID string) string

// DefaultTimeout bounds every single store round trip.
const DefaultTimeout = 10 * time.Second

// Operator runs CRUD operations against the document store.
type Operator struct {
	store   docstore.Store
	names   NameLookup
	timeout time.Duration
}

// Builder is a builder helper for the Operator.
type Builder struct {
	// Store is the document store. This is mandatory.
	Store docstore.Store
	// NameLookup resolves subject ids for response shaping. This is optional.
	NameLookup NameLookup
	// Timeout bounds each store call. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// New creates the operator.
func New(b *Builder) *Operator {
	if b.Store == nil {
		panic("store is missing")
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	names := b.NameLookup
	if names == nil {
		names = func(context.Context, string) string { return "Unknown" }
	}
	return &Operator{store: b.Store, names: names, timeout: timeout}
}

func (o *Operator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.timeout)
}

// callerID returns the verified subject id of the request, or the empty
// string if the request was not authenticated.
func callerID(ctx context.Context) string {
	if identity := access.IdentityFromContext(ctx); identity != nil {
		return identity.UserID
	}
	return ""
}

// timestamp returns the ISO-8601 representation used for the system fields.
func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.999999")
}

// Create creates a new document in the given collection and returns 201 and
// the new document id.
//
// If id is empty a fresh UUID is assigned. A caller supplied id that
// collides with an existing document silently overwrites it, the write is
// an upsert; callers must supply fresh UUIDs.
//
// If duplicateFilters are given, a duplicate probe runs first and an
// existing match is answered with 409 and the existing id. A failed probe
// blocks the write.
func (o *Operator) Create(ctx context.Context, collection string, fields map[string]interface{},
	id string, duplicateFilters []docstore.Filter) (int, interface{}) {

	rlog := logger.FromContext(ctx)

	callCtx, cancel := o.callContext(ctx)
	ok, err := o.store.HasCollection(callCtx, collection)
	cancel()
	if err != nil {
		errorMessage := fmt.Sprintf("Timed out while trying to get reference for collection %s: %s", collection, err.Error())
		rlog.Errorln(errorMessage)
		return http.StatusInternalServerError, errorMessage
	}
	if !ok {
		return http.StatusInternalServerError,
			fmt.Sprintf("Cannot create document! Collection does not exist: '%s'", collection)
	}

	if len(duplicateFilters) > 0 {
		successful, duplicateID := o.GetDuplicate(ctx, collection, duplicateFilters)
		if !successful {
			return http.StatusInternalServerError, "Could not check for duplicates!"
		}
		if duplicateID != "" {
			return http.StatusConflict, duplicateID
		}
	}

	if id == "" {
		id = uuid.NewString()
	}

	now := timestamp()
	caller := callerID(ctx)
	newData := map[string]interface{}{}
	for key, value := range fields {
		newData[key] = value
	}
	newData["created_at"] = now
	newData["modified_at"] = now
	newData["created_by"] = caller
	newData["modified_by"] = caller

	callCtx, cancel = o.callContext(ctx)
	err = o.store.Set(callCtx, collection, id, newData)
	cancel()
	if err != nil {
		errorMessage := fmt.Sprintf("Timed out while trying to create entry in %s: %s", collection, err.Error())
		rlog.Errorln(errorMessage)
		return http.StatusInternalServerError, errorMessage
	}
	rlog.Infof("created entry in collection: %s, ID: %s", collection, id)
	return http.StatusCreated, id
}

// Read returns 200 and the document with the given id, enriched with the id
// itself, the creator and modifier display names and any type specific
// reference resolution.
func (o *Operator) Read(ctx context.Context, collection, id string) (int, interface{}) {
	rlog := logger.FromContext(ctx)

	callCtx, cancel := o.callContext(ctx)
	fields, err := o.store.Get(callCtx, collection, id)
	cancel()
	if err == docstore.ErrNotFound {
		return http.StatusNotFound, "Element not found!"
	}
	if err != nil {
		errorMessage := fmt.Sprintf("Timed out while trying to read entry in %s: %s", collection, err.Error())
		rlog.Errorln(errorMessage)
		return http.StatusInternalServerError, errorMessage
	}
	rlog.Infof("selected element '%s' in collection '%s'", id, collection)
	return http.StatusOK, o.enrich(ctx, collection, id, fields)
}

// ReadAll returns 200 and all documents of the collection, each enriched
// the same way as Read. Results are all-or-nothing: a store failure returns
// no partial list.
func (o *Operator) ReadAll(ctx context.Context, collection string) (int, interface{}) {
	rlog := logger.FromContext(ctx)

	callCtx, cancel := o.callContext(ctx)
	documents, err := o.store.List(callCtx, collection)
	cancel()
	if err != nil {
		errorMessage := fmt.Sprintf("Timed out while trying to read all entries for %s: %s", collection, err.Error())
		rlog.Errorln(errorMessage)
		return http.StatusInternalServerError, errorMessage
	}
	elements := make([]map[string]interface{}, 0, len(documents))
	for _, document := range documents {
		elements = append(elements, o.enrich(ctx, collection, document.ID, document.Fields))
	}
	rlog.Infof("selected elements for collection '%s'", collection)
	return http.StatusOK, elements
}

// Update applies the given fields to an existing document and returns 200
// and the document id.
//
// If allowedUpdater is set, the update is refused with 403 unless the
// document was created by exactly that subject. If duplicateFilters are
// given, a probe match other than the document itself is answered with
// 409. If historyType names a collection, the field level diff between the
// stored and submitted values is persisted there before the update; a
// failed history write aborts the update and its status is surfaced.
func (o *Operator) Update(ctx context.Context, collection string, fields map[string]interface{},
	id string, duplicateFilters []docstore.Filter, allowedUpdater string, historyType string) (int, interface{}) {

	rlog := logger.FromContext(ctx)

	var stored map[string]interface{}
	if allowedUpdater != "" || historyType != "" {
		callCtx, cancel := o.callContext(ctx)
		var err error
		stored, err = o.store.Get(callCtx, collection, id)
		cancel()
		if err == docstore.ErrNotFound {
			return http.StatusNotFound, "Element not found!"
		}
		if err != nil {
			errorMessage := fmt.Sprintf("Timed out while trying to read entry in %s: %s", collection, err.Error())
			rlog.Errorln(errorMessage)
			return http.StatusInternalServerError, errorMessage
		}
	}

	if allowedUpdater != "" {
		createdBy, _ := stored["created_by"].(string)
		if createdBy != allowedUpdater {
			errorMessage := "Not allowed to update entry!"
			rlog.Errorln(errorMessage)
			return http.StatusForbidden, errorMessage
		}
	}

	if len(duplicateFilters) > 0 {
		successful, duplicateID := o.GetDuplicate(ctx, collection, duplicateFilters)
		if !successful {
			return http.StatusInternalServerError, "Could not check for duplicates!"
		}
		if duplicateID != "" && duplicateID != id {
			return http.StatusConflict, duplicateID
		}
	}

	if historyType != "" {
		previousValues, changedValues := diffFields(stored, fields)
		if len(changedValues) > 0 {
			historyFields := map[string]interface{}{
				"ticket_id":       id,
				"previous_values": previousValues,
				"changed_values":  changedValues,
			}
			status, payload := o.Create(ctx, historyType, historyFields, "", nil)
			if status != http.StatusCreated {
				rlog.Errorf("aborting update, could not create history entry in '%s'", historyType)
				return status, payload
			}
		}
	}

	updateData := map[string]interface{}{}
	for key, value := range fields {
		updateData[key] = value
	}
	updateData["modified_at"] = timestamp()
	updateData["modified_by"] = callerID(ctx)

	callCtx, cancel := o.callContext(ctx)
	err := o.store.Update(callCtx, collection, id, updateData)
	cancel()
	if err == docstore.ErrNotFound {
		rlog.Errorln("error while updating the entry: not found")
		return http.StatusNotFound, "Element not found!"
	}
	if err != nil {
		errorMessage := fmt.Sprintf("Timed out while trying to update entry in %s: %s", collection, err.Error())
		rlog.Errorln(errorMessage)
		return http.StatusInternalServerError, errorMessage
	}
	rlog.Infof("updated entry in collection '%s', with ID '%s'", collection, id)
	return http.StatusOK, id
}

// Delete removes the document with the given id and returns 204. Deleting
// is unconditional; referential guards are the dispatcher's concern.
func (o *Operator) Delete(ctx context.Context, collection, id string) (int, interface{}) {
	rlog := logger.FromContext(ctx)

	callCtx, cancel := o.callContext(ctx)
	err := o.store.Delete(callCtx, collection, id)
	cancel()
	if err != nil {
		errorMessage := fmt.Sprintf("Timed out while trying to delete entry in %s: %s", collection, err.Error())
		rlog.Errorln(errorMessage)
		return http.StatusInternalServerError, errorMessage
	}
	rlog.Infof("deleted element with ID '%s' in collection '%s'", id, collection)
	return http.StatusNoContent, nil
}

// Find queries the collection with the given equality filters, limited to
// limit documents. An unknown filter field is a client error and answered
// with 400; a store failure with 500.
func (o *Operator) Find(ctx context.Context, collection string, filters []docstore.Filter, limit int) (int, interface{}) {
	rlog := logger.FromContext(ctx)

	callCtx, cancel := o.callContext(ctx)
	documents, err := o.store.Query(callCtx, collection, filters, limit)
	cancel()
	if isUnknownField(err) {
		rlog.Errorln("filter field is not known!", err)
		return http.StatusBadRequest, "Filter field is not known!"
	}
	if err != nil {
		errorMessage := fmt.Sprintf("Timed out while trying to find entries in %s: %s", collection, err.Error())
		rlog.Errorln(errorMessage)
		return http.StatusInternalServerError, errorMessage
	}
	rlog.Infof("searched max. %d element(s) for collection '%s'", limit, collection)
	elements := make([]map[string]interface{}, 0, len(documents))
	for _, document := range documents {
		elements = append(elements, o.enrich(ctx, collection, document.ID, document.Fields))
	}
	return http.StatusOK, elements
}

// FindAll queries the collection with the given equality filters without a
// limit. The result is enriched the same way as ReadAll.
func (o *Operator) FindAll(ctx context.Context, collection string, filters []docstore.Filter) (int, interface{}) {
	return o.Find(ctx, collection, filters, 0)
}

// GetDuplicate probes the collection for an existing document matching all
// filters. It returns whether the probe itself succeeded and the id of a
// match, if any. A failed probe must block the pending write, the check
// fails closed.
func (o *Operator) GetDuplicate(ctx context.Context, collection string, filters []docstore.Filter) (bool, string) {
	rlog := logger.FromContext(ctx)

	callCtx, cancel := o.callContext(ctx)
	documents, err := o.store.Query(callCtx, collection, filters, 1)
	cancel()
	if err != nil {
		rlog.WithError(err).Errorln("duplicate probe failed for collection", collection)
		return false, ""
	}
	if len(documents) > 0 {
		return true, documents[0].ID
	}
	return true, ""
}

func isUnknownField(err error) bool {
	return errors.Is(err, docstore.ErrUnknownField)
}
