// Copyright 2024 TernDB Corp. All rights reserved.
package tern

import (
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/terndb/tern/errors"
)

const (
	ErrDuplicateKey errors.Code = "ErrDuplicateKey"
)

// RecordID identifies a stored document within its collection.
type RecordID int64

// Record is a stored document plus its location.
type Record struct {
	ID  RecordID
	Doc bson.D
}

// Collection is an in-memory document store with an index catalog, a cursor
// registry and per-collection query settings. Namespaces are of the form
// "db.collection".
type Collection struct {
	ns     string
	capped bool

	mu      sync.RWMutex
	records []Record
	byID    map[string]RecordID
	nextID  RecordID

	catalog  *IndexCatalog
	registry *CursorRegistry
	settings *QuerySettings
}

// CollectionOption is a functional option for NewCollection.
type CollectionOption func(c *Collection)

// OptCollectionCapped marks the collection capped (insertion-ordered,
// tailable cursors allowed).
func OptCollectionCapped() CollectionOption {
	return func(c *Collection) {
		c.capped = true
	}
}

func NewCollection(ns string, opts ...CollectionOption) *Collection {
	c := &Collection{
		ns:       ns,
		byID:     make(map[string]RecordID),
		nextID:   1,
		catalog:  NewIndexCatalog(),
		registry: NewCursorRegistry(),
		settings: NewQuerySettings(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collection) NS() string                   { return c.ns }
func (c *Collection) IsCapped() bool               { return c.capped }
func (c *Collection) Catalog() *IndexCatalog       { return c.catalog }
func (c *Collection) Registry() *CursorRegistry    { return c.registry }
func (c *Collection) QuerySettings() *QuerySettings { return c.settings }

// Insert stores docs in insertion order and indexes their _id values when
// present.
func (c *Collection) Insert(docs ...bson.D) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, doc := range docs {
		if idVal, ok := lookupField(doc, "_id"); ok {
			key := valueKey(idVal)
			if _, dup := c.byID[key]; dup {
				return errors.Newf(ErrDuplicateKey, "duplicate _id in %s", c.ns)
			}
			c.byID[key] = c.nextID
		}
		c.records = append(c.records, Record{ID: c.nextID, Doc: doc})
		c.nextID++
	}
	return nil
}

// Snapshot returns a point-in-time copy of the record list in natural
// order.
func (c *Collection) Snapshot() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// NumRecords returns the number of stored documents.
func (c *Collection) NumRecords() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// FindByID resolves a document by its _id value.
func (c *Collection) FindByID(id interface{}) (bson.D, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rid, ok := c.byID[valueKey(id)]
	if !ok {
		return nil, false
	}
	for _, rec := range c.records {
		if rec.ID == rid {
			return rec.Doc, true
		}
	}
	return nil, false
}

// NSDatabase returns the database portion of a namespace.
func NSDatabase(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[:i]
	}
	return ns
}

// NSCollection returns the collection portion of a namespace.
func NSCollection(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ""
}

func lookupField(doc bson.D, name string) (interface{}, bool) {
	for _, elem := range doc {
		if elem.Key == name {
			return elem.Value, true
		}
	}
	return nil, false
}
