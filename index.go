// Copyright 2024 TernDB Corp. All rights reserved.
package tern

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/terndb/tern/errors"
)

const (
	ErrIndexExists   errors.Code = "ErrIndexExists"
	ErrIndexNotFound errors.Code = "ErrIndexNotFound"
)

// IDIndexName is the name of the index that every collection has over the
// _id field.
const IDIndexName = "_id_"

// IndexDescriptor describes one index on a collection. The key pattern is an
// ordered field->direction document; a string value in the key pattern marks
// a special index type (e.g. "hashed", "text", "2dsphere") and names its
// plugin.
type IndexDescriptor struct {
	Name       string
	KeyPattern bson.D
	Multikey   bool
	Sparse     bool
	Unique     bool
	InfoObj    bson.D
}

// PluginName returns the name of the special index plugin serving this
// index, or the empty string for an ordinary btree index.
func (d *IndexDescriptor) PluginName() string {
	for _, elem := range d.KeyPattern {
		if s, ok := elem.Value.(string); ok {
			return s
		}
	}
	return ""
}

// IsIDIndex returns true if this index is the default index over _id.
func (d *IndexDescriptor) IsIDIndex() bool {
	if len(d.KeyPattern) != 1 {
		return false
	}
	return d.KeyPattern[0].Key == "_id"
}

// FieldPosition returns the ordinal of the first key pattern field named
// field, or -1 if the pattern has no such field.
func (d *IndexDescriptor) FieldPosition(field string) int {
	for i, elem := range d.KeyPattern {
		if elem.Key == field {
			return i
		}
	}
	return -1
}

// IndexCatalog holds the indexes of a single collection. In-progress builds
// are tracked separately and excluded from iteration unless asked for.
type IndexCatalog struct {
	mu         sync.RWMutex
	indexes    []*IndexDescriptor
	unfinished []*IndexDescriptor
}

func NewIndexCatalog() *IndexCatalog {
	return &IndexCatalog{}
}

// AddIndex registers a completed index with the catalog.
func (c *IndexCatalog) AddIndex(d *IndexDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.indexes {
		if existing.Name == d.Name {
			return errors.Newf(ErrIndexExists, "index %q already exists", d.Name)
		}
	}
	c.indexes = append(c.indexes, d)
	return nil
}

// AddUnfinishedIndex registers an in-progress index build. Unfinished
// indexes are invisible to Indexes(false).
func (c *IndexCatalog) AddUnfinishedIndex(d *IndexDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unfinished = append(c.unfinished, d)
}

// Indexes returns the catalog's indexes in creation order. Pass
// includeUnfinished to also see in-progress builds.
func (c *IndexCatalog) Indexes(includeUnfinished bool) []*IndexDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*IndexDescriptor, 0, len(c.indexes)+len(c.unfinished))
	out = append(out, c.indexes...)
	if includeUnfinished {
		out = append(out, c.unfinished...)
	}
	return out
}

// FindIDIndex returns the index over _id, or nil if the collection has
// none.
func (c *IndexCatalog) FindIDIndex() *IndexDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.indexes {
		if d.IsIDIndex() {
			return d
		}
	}
	return nil
}

// FindByName returns the named index, or nil.
func (c *IndexCatalog) FindByName(name string) *IndexDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.indexes {
		if d.Name == name {
			return d
		}
	}
	return nil
}
