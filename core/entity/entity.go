/*Package entity declares the entity types served by the data endpoint.

Each type maps to one document store collection. The schema lists the
client supplied fields; the four system fields created_at, created_by,
modified_at and modified_by are stamped by the operator and never accepted
from a request body.
*/
package entity

import "strings"

// Type identifies one entity kind. The value is the collection name.
type Type string

// all entity types
const (
	Course        Type = "course"
	Ticket        Type = "ticket"
	Comment       Type = "comment"
	TicketHistory Type = "ticket_history"
)

// Schema describes one entity type.
type Schema struct {
	// Fields are the client supplied fields. All of them are required on
	// create and update.
	Fields []string
	// ReadOnly marks entity types that reject any single-element request
	// with 405. Their records are created by the backend itself.
	ReadOnly bool
	// NoDelete marks entity types that can never be deleted.
	NoDelete bool
	// SchemaID references an optional JSON schema for body validation.
	SchemaID string
}

// Mappings is the static type registry. A request against an unknown
// entity type is rejected with 400 before any other processing.
var Mappings = map[Type]Schema{
	Course: {
		Fields:   []string{"course_abbreviation", "name"},
		SchemaID: "course.json",
	},
	Ticket: {
		Fields:   []string{"title", "description", "course_id", "status", "priority", "type", "assignee_id"},
		NoDelete: true,
		SchemaID: "ticket.json",
	},
	Comment: {
		Fields:   []string{"content", "ticket_id"},
		ReadOnly: true,
		SchemaID: "comment.json",
	},
	TicketHistory: {
		Fields:   []string{"ticket_id", "previous_values", "changed_values"},
		ReadOnly: true,
	},
}

// FromPathSegment normalizes a request path segment into an entity type.
// The second return value reports whether the type is known.
func FromPathSegment(segment string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(segment)))
	_, ok := Mappings[t]
	return t, ok
}

// Collection returns the document store collection name for the type.
func (t Type) Collection() string {
	return string(t)
}

// Collections returns the collection names of all registered entity types.
func Collections() []string {
	names := make([]string, 0, len(Mappings))
	for t := range Mappings {
		names = append(names, t.Collection())
	}
	return names
}
