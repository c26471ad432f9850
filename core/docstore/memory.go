package docstore

import (
	"context"
	"reflect"
	"sync"

	"github.com/goccy/go-json"
)

// Memory is an in-memory document store for unit tests. It implements the
// same contract as the postgres store, including JSON value normalization,
// so equality filters behave identically.
type Memory struct {
	mutex       sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	queryable map[string]bool
	documents map[string]map[string]interface{}
	order     []string
}

// NewMemory creates an in-memory document store with the given collections.
// The map value lists the schema fields of each collection.
func NewMemory(collections map[string][]string) *Memory {
	m := &Memory{collections: map[string]*memoryCollection{}}
	for collection, fields := range collections {
		queryable := map[string]bool{}
		for _, field := range fields {
			queryable[field] = true
		}
		for _, field := range systemFields {
			queryable[field] = true
		}
		m.collections[collection] = &memoryCollection{
			queryable: queryable,
			documents: map[string]map[string]interface{}{},
		}
	}
	return m
}

// normalize round-trips a value through JSON so stored and queried values
// compare the way they would in the database.
func normalize(value interface{}) interface{} {
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

func normalizeFields(fields map[string]interface{}) map[string]interface{} {
	normalized := map[string]interface{}{}
	for key, value := range fields {
		normalized[key] = normalize(value)
	}
	return normalized
}

// HasCollection reports whether the named collection is provisioned.
func (m *Memory) HasCollection(ctx context.Context, collection string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.collections[collection]
	return ok, nil
}

// Get returns the fields of the document with the given id, or ErrNotFound.
func (m *Memory) Get(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	document, ok := c.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := map[string]interface{}{}
	for key, value := range document {
		copy[key] = value
	}
	return copy, nil
}

// Set writes the full document under the given id, overwriting any existing
// document with the same id.
func (m *Memory) Set(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return ErrNotFound
	}
	if _, exists := c.documents[id]; !exists {
		c.order = append(c.order, id)
	}
	c.documents[id] = normalizeFields(fields)
	return nil
}

// Update merges the given fields into an existing document.
func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return ErrNotFound
	}
	document, ok := c.documents[id]
	if !ok {
		return ErrNotFound
	}
	for key, value := range normalizeFields(fields) {
		document[key] = value
	}
	return nil
}

// Query returns the documents matching all filters, in insertion order.
func (m *Memory) Query(ctx context.Context, collection string, filters []Filter, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return []Document{}, nil
	}
	for _, filter := range filters {
		if filter.Op != OpEqual {
			return nil, ErrUnknownField
		}
		if !c.queryable[filter.Field] {
			return nil, ErrUnknownField
		}
	}
	documents := []Document{}
	for _, id := range c.order {
		document := c.documents[id]
		matches := true
		for _, filter := range filters {
			if !reflect.DeepEqual(document[filter.Field], normalize(filter.Value)) {
				matches = false
				break
			}
		}
		if !matches {
			continue
		}
		copy := map[string]interface{}{}
		for key, value := range document {
			copy[key] = value
		}
		documents = append(documents, Document{ID: id, Fields: copy})
		if limit > 0 && len(documents) == limit {
			break
		}
	}
	return documents, nil
}

// List returns all documents of the collection in insertion order.
func (m *Memory) List(ctx context.Context, collection string) ([]Document, error) {
	return m.Query(ctx, collection, nil, 0)
}

// Delete removes the document with the given id.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil
	}
	if _, exists := c.documents[id]; !exists {
		return nil
	}
	delete(c.documents, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}
