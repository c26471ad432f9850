package docstore

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/projekt-software-engineering/ticket-backend/core/csql"
)

// Postgres is a document store backed by a postgres database. Every
// collection is one table with an id column and a jsonb properties column.
type Postgres struct {
	db          *csql.DB
	collections map[string]map[string]bool // collection -> queryable fields
}

// system fields are queryable on every collection
var systemFields = []string{"created_at", "created_by", "modified_at", "modified_by"}

// NewPostgres creates a postgres document store and provisions the given
// collections. The map value lists the schema fields of each collection;
// together with the system fields they form the set of queryable fields.
func NewPostgres(db *csql.DB, collections map[string][]string) (*Postgres, error) {
	p := &Postgres{
		db:          db,
		collections: map[string]map[string]bool{},
	}
	for collection, fields := range collections {
		// ids are strings, not uuids: user ids come from the identity
		// provider and follow its format
		createQuery := fmt.Sprintf(`CREATE table IF NOT EXISTS %s."%s"
(id varchar NOT NULL PRIMARY KEY,
properties jsonb NOT NULL DEFAULT '{}'::jsonb,
timestamp timestamp NOT NULL DEFAULT now()
);`, db.Schema, collection)
		if _, err := db.Exec(createQuery); err != nil {
			return nil, fmt.Errorf("cannot provision collection '%s': %s", collection, err.Error())
		}
		queryable := map[string]bool{}
		for _, field := range fields {
			queryable[field] = true
		}
		for _, field := range systemFields {
			queryable[field] = true
		}
		p.collections[collection] = queryable
	}
	return p, nil
}

// HasCollection reports whether the named collection is provisioned.
func (p *Postgres) HasCollection(ctx context.Context, collection string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := p.collections[collection]
	return ok, nil
}

// Get returns the fields of the document with the given id, or ErrNotFound.
func (p *Postgres) Get(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	var properties json.RawMessage
	err := p.db.QueryRowContext(ctx,
		`SELECT properties FROM `+p.db.Schema+`."`+collection+`" WHERE id=$1;`,
		id).Scan(&properties)
	if err == csql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(properties, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Set writes the full document under the given id, overwriting any existing
// document with the same id.
func (p *Postgres) Set(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	properties, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO `+p.db.Schema+`."`+collection+`"(id,properties)
VALUES($1,$2::jsonb)
ON CONFLICT (id) DO UPDATE SET properties=$2::jsonb, timestamp=now();`,
		id, string(properties))
	return err
}

// Update merges the given fields into an existing document.
func (p *Postgres) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	properties, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE `+p.db.Schema+`."`+collection+`" SET properties = properties || $2::jsonb, timestamp=now() WHERE id=$1;`,
		id, string(properties))
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// Query returns the documents matching all filters, in insertion order.
func (p *Postgres) Query(ctx context.Context, collection string, filters []Filter, limit int) ([]Document, error) {
	queryable := p.collections[collection]
	query := `SELECT id, properties FROM ` + p.db.Schema + `."` + collection + `" `
	var args []interface{}
	for i, filter := range filters {
		if filter.Op != OpEqual {
			return nil, fmt.Errorf("%w: operator '%s'", ErrUnknownField, filter.Op)
		}
		if !queryable[filter.Field] {
			return nil, fmt.Errorf("%w: '%s'", ErrUnknownField, filter.Field)
		}
		value, err := json.Marshal(filter.Value)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			query += "WHERE "
		} else {
			query += "AND "
		}
		args = append(args, string(value))
		query += fmt.Sprintf("properties->'%s' = $%d::jsonb ", filter.Field, len(args))
	}
	query += "ORDER BY timestamp ASC, id ASC "
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf("LIMIT $%d", len(args))
	}
	query += ";"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	documents := []Document{}
	for rows.Next() {
		var (
			id         string
			properties json.RawMessage
		)
		if err := rows.Scan(&id, &properties); err != nil {
			return nil, err
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(properties, &fields); err != nil {
			return nil, err
		}
		documents = append(documents, Document{ID: id, Fields: fields})
	}
	return documents, rows.Err()
}

// List returns all documents of the collection in insertion order.
func (p *Postgres) List(ctx context.Context, collection string) ([]Document, error) {
	return p.Query(ctx, collection, nil, 0)
}

// Delete removes the document with the given id.
func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM `+p.db.Schema+`."`+collection+`" WHERE id=$1;`,
		id)
	return err
}
