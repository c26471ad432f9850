package operator

import (
	"context"

	"github.com/projekt-software-engineering/ticket-backend/core/entity"
)

// ReferenceResolver enriches a loaded record with denormalized data pulled
// from related collections. Resolution is best effort: lookup failures are
// skipped and never fail the parent read.
type ReferenceResolver interface {
	ResolveRefs(ctx context.Context, o *Operator, record map[string]interface{})
}

// resolvers is the static type to resolver table. Entity types without an
// entry are no-ops.
var resolvers = map[entity.Type]ReferenceResolver{
	entity.Ticket:        ticketResolver{},
	entity.TicketHistory: ticketHistoryResolver{},
}

// enrich shapes a stored document into its read representation: the id,
// the creator and modifier display names, and type specific references.
// Enrichment is a pure function of the current related record state.
func (o *Operator) enrich(ctx context.Context, collection, id string, fields map[string]interface{}) map[string]interface{} {
	record := map[string]interface{}{}
	for key, value := range fields {
		record[key] = value
	}
	record["id"] = id
	createdBy, _ := record["created_by"].(string)
	modifiedBy, _ := record["modified_by"].(string)
	record["created_by_name"] = o.names(ctx, createdBy)
	record["modified_by_name"] = o.names(ctx, modifiedBy)
	if resolver, ok := resolvers[entity.Type(collection)]; ok {
		resolver.ResolveRefs(ctx, o, record)
	}
	return record
}

type ticketResolver struct{}

// ResolveRefs attaches the referenced course's name and abbreviation and
// the assignee's display name to a ticket record.
func (ticketResolver) ResolveRefs(ctx context.Context, o *Operator, record map[string]interface{}) {
	resolveTicketRefs(ctx, o, record)
}

type ticketHistoryResolver struct{}

// ResolveRefs applies the ticket enrichments independently to the
// previous_values and changed_values sub-maps, only where the respective
// reference key is part of that sub-map.
func (ticketHistoryResolver) ResolveRefs(ctx context.Context, o *Operator, record map[string]interface{}) {
	for _, key := range []string{"previous_values", "changed_values"} {
		values, ok := record[key].(map[string]interface{})
		if !ok {
			continue
		}
		// the stores copy documents at the top level only, the sub-map
		// still aliases the stored document
		enriched := make(map[string]interface{}, len(values))
		for field, value := range values {
			enriched[field] = value
		}
		resolveTicketRefs(ctx, o, enriched)
		record[key] = enriched
	}
}

func resolveTicketRefs(ctx context.Context, o *Operator, record map[string]interface{}) {
	if courseID, ok := record["course_id"].(string); ok && courseID != "" {
		callCtx, cancel := o.callContext(ctx)
		course, err := o.store.Get(callCtx, entity.Course.Collection(), courseID)
		cancel()
		if err == nil {
			record["course_name"] = course["name"]
			record["course_abbreviation"] = course["course_abbreviation"]
		}
	}
	if _, present := record["assignee_id"]; present {
		if assigneeID, ok := record["assignee_id"].(string); ok && assigneeID != "" {
			record["assignee_name"] = o.names(ctx, assigneeID)
		}
	}
}
