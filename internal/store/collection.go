package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection is a typed view over one named collection. T is a struct that
// embeds Record; its exported JSON fields become the document's domain
// fields.
type Collection[T any] struct {
	db   *DB
	name string
}

// Bind returns a typed view of the named collection. It fails for
// undeclared names.
func Bind[T any](db *DB, name string) (*Collection[T], error) {
	if err := ValidateCollection(name); err != nil {
		return nil, err
	}
	return &Collection[T]{db: db, name: name}, nil
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Create stores v and returns it with its system fields filled in.
func (c *Collection[T]) Create(ctx context.Context, v *T) (*T, error) {
	doc, err := toDocument(v)
	if err != nil {
		return nil, err
	}
	created, err := c.db.Create(ctx, c.name, doc)
	if err != nil {
		return nil, err
	}
	return fromDocument[T](created)
}

// Update merges the given domain fields into the stored record.
func (c *Collection[T]) Update(ctx context.Context, id string, partial map[string]any) (*T, error) {
	updated, err := c.db.Update(ctx, c.name, id, partial)
	if err != nil {
		return nil, err
	}
	return fromDocument[T](updated)
}

// Delete removes the record.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.db.Delete(ctx, c.name, id)
}

// Get returns the record, or nil when it does not exist.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := c.db.GetByID(ctx, c.name, id)
	if err != nil || doc == nil {
		return nil, err
	}
	return fromDocument[T](doc)
}

// All returns every record in insertion order.
func (c *Collection[T]) All(ctx context.Context) ([]*T, error) {
	docs, err := c.db.GetAll(ctx, c.name)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(docs))
	for _, d := range docs {
		v, err := fromDocument[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func toDocument[T any](v *T) (*Document, error) {
	if v == nil {
		return &Document{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return &doc, nil
}

func fromDocument[T any](doc *Document) (*T, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return &v, nil
}
