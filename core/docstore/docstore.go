/*Package docstore abstracts the underlying document store.

A store holds named collections of JSON documents addressed by a unique id.
It supports get/set/update/query/delete with per-call timeouts through the
passed context. The production implementation keeps documents in postgres
JSONB columns; an in-memory implementation backs the unit tests.
*/
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document with the requested id does not exist.
var ErrNotFound = errors.New("document not found")

// ErrUnknownField is returned by Query when a filter references a field that
// is not part of the collection's schema. This is a client-shaped error, not
// a store failure.
var ErrUnknownField = errors.New("unknown filter field")

// FilterOp is the operator of a filter constraint. The constraint language
// is deliberately closed: equality is the only operator.
type FilterOp string

// OpEqual is the equality operator
const OpEqual FilterOp = "=="

// Filter is one field constraint. Multiple filters form a conjunction.
type Filter struct {
	Field string
	Op    FilterOp
	Value interface{}
}

// Eq builds an equality filter for the given field and value.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// Document is one stored entity instance.
type Document struct {
	ID     string
	Fields map[string]interface{}
}

// Store is the document store interface. All operations honor the deadline
// of the passed context; an expired deadline surfaces as a wrapped
// context.DeadlineExceeded error.
type Store interface {
	// HasCollection reports whether the named collection is provisioned.
	HasCollection(ctx context.Context, collection string) (bool, error)

	// Get returns the fields of the document with the given id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (map[string]interface{}, error)

	// Set writes the full document under the given id. An existing document
	// with the same id is overwritten.
	Set(ctx context.Context, collection, id string, fields map[string]interface{}) error

	// Update merges the given fields into an existing document. It returns
	// ErrNotFound if the document does not exist.
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error

	// Query returns the documents matching all filters, in insertion order.
	// A limit below 1 means no limit. Filters on fields outside the
	// collection's schema return ErrUnknownField.
	Query(ctx context.Context, collection string, filters []Filter, limit int) ([]Document, error)

	// List returns all documents of the collection in insertion order.
	List(ctx context.Context, collection string) ([]Document, error)

	// Delete removes the document with the given id. Deleting a document
	// that does not exist is not an error.
	Delete(ctx context.Context, collection, id string) error
}
